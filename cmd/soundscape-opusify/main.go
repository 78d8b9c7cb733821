package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"soundscape/internal/codec"
	"soundscape/internal/container"
	"soundscape/pkg/spec"
)

const (
	version_major = 1
	version_minor = 0
	app_name      = "Soundscape-Opusify"
)

type job struct {
	in, out string
}

func main() {
	outDir := flag.StringP("out", "o", "", "destination folder (default: next to each input)")
	normalize := flag.BoolP("normalize", "n", false, "peak-normalise before encoding")
	workers := flag.IntP("workers", "w", 2, "files encoded in parallel")
	force := flag.BoolP("force", "f", false, "overwrite existing .opf files")
	verbose := flag.BoolP("verbose", "v", false, "log every file")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		var err error
		inputs, *outDir, *normalize, *workers, err = interview()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if *verbose {
		log.SetLevel(logrus.InfoLevel)
	}

	jobs, err := plan(inputs, *outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		fmt.Println("nothing to encode")
		return
	}
	if *workers < 1 {
		*workers = 1
	}

	fmt.Printf("\n[START] %d file(s), %d worker(s)\n", len(jobs), *workers)
	prog := NewProgress(os.Stdout, len(jobs))

	queue := make(chan job)
	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []string
	)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				l := log.WithField("file", filepath.Base(j.in))
				if !*force {
					if _, err := os.Stat(j.out); err == nil {
						l.Info("exists, skipped")
						prog.Done(true)
						continue
					}
				}
				dur, err := convert(j, *normalize)
				if err != nil {
					l.WithError(err).Warn("encode failed")
					failMu.Lock()
					failed = append(failed, fmt.Sprintf("%s: %v", j.in, err))
					failMu.Unlock()
					prog.Done(false)
					continue
				}
				l.WithField("duration", dur).Info("encoded")
				prog.Done(true)
			}
		}()
	}
	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()

	for _, f := range failed {
		fmt.Println(" [FAIL]", f)
	}
	if len(failed) > 0 {
		os.Exit(1)
	}
	fmt.Println("[SUCCESS] done")
}

// plan expands directories and maps every wav to its .opf destination.
func plan(inputs []string, outDir string) ([]job, error) {
	var jobs []job
	add := func(path string) {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + spec.FrameExt
		dir := filepath.Dir(path)
		if outDir != "" {
			dir = outDir
		}
		jobs = append(jobs, job{in: path, out: filepath.Join(dir, base)})
	}
	for _, in := range inputs {
		st, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			add(in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
				add(filepath.Join(in, e.Name()))
			}
		}
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// convert encodes one wav. Frames are written by a separate goroutine as
// the encoder produces them; a failed file is removed.
func convert(j job, normalize bool) (dur float64, err error) {
	in, err := os.Open(j.in)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	src, err := codec.ProbeWav(in)
	if err != nil {
		return 0, err
	}
	gain := 1.0
	if normalize {
		peak, err := codec.Peak(in)
		if err != nil {
			return 0, errors.Wrap(err, "peak scan")
		}
		gain = codec.NormalizeGain(peak)
	}

	tmp := j.out + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmp)
		}
	}()

	w, err := container.NewWriter(out)
	if err != nil {
		return 0, err
	}

	frames := make(chan codec.Frame, 100)
	var (
		writeErr error
		writeWg  sync.WaitGroup
	)
	writeWg.Add(1)
	go func() {
		defer writeWg.Done()
		for fr := range frames {
			if writeErr != nil {
				continue
			}
			writeErr = w.WriteFrame(fr.Data)
		}
	}()

	dur, err = codec.EncodeWav(in, gain, frames)
	close(frames)
	writeWg.Wait()
	if err != nil {
		return 0, err
	}
	if writeErr != nil {
		return 0, errors.Wrap(writeErr, "write frame")
	}

	info := container.Info{
		Title:      strings.TrimSuffix(filepath.Base(j.in), filepath.Ext(j.in)),
		Source:     filepath.Base(j.in),
		SampleRate: spec.SampleRate,
		Channels:   spec.Channels,
		FrameMS:    spec.FrameSize,
		Duration:   dur,
	}
	if src.Duration > 0 && src.Duration < dur {
		info.Duration = src.Duration
	}
	if err = w.Close(info); err != nil {
		return 0, err
	}
	if err = out.Sync(); err != nil {
		return 0, err
	}
	if err = out.Close(); err != nil {
		return 0, err
	}
	return dur, os.Rename(tmp, j.out)
}

func interview() ([]string, string, bool, int, error) {
	rl, err := readline.NewEx(&readline.Config{Prompt: ">> "})
	if err != nil {
		return nil, "", false, 0, err
	}
	defer rl.Close()

	fmt.Printf("\n%s version %d.%d\n", app_name, version_major, version_minor)
	src := ask(rl, "1. WAV file or folder", ".")
	dst := ask(rl, "2. Destination folder (empty: next to source)", "")
	norm := strings.HasPrefix(strings.ToLower(ask(rl, "3. Normalise peaks (y/n)", "n")), "y")
	w, _ := strconv.Atoi(ask(rl, "4. Worker threads", "2"))

	return []string{src}, dst, norm, w, nil
}

func ask(rl *readline.Instance, prompt, def string) string {
	rl.SetPrompt(fmt.Sprintf("%s [%s]: ", prompt, def))
	line, _ := rl.Readline()
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
