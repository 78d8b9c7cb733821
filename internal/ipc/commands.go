package ipc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"soundscape/internal/player"
	"soundscape/pkg/spec"
)

// dispatch answers one request line. Only write errors are returned.
func (s *Server) dispatch(c *conn, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	// VERB + raw argument, song names may contain spaces
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}

	// === read-only ===
	switch cmd {
	case spec.CmdAbout:
		return c.writeLine(fmt.Sprintf("%s V.%d.%d", spec.ServerName, spec.VersionMajor, spec.VersionMinor))

	case spec.CmdPing:
		return c.writeLine("Pong")

	case spec.CmdWhoAmI:
		if s.isOwner(c) {
			return c.writeLine("OWNER")
		}
		return c.writeLine("OBSERVER")

	case spec.CmdStatus:
		return writeJSON(c, s.ctrl.Status())

	case spec.CmdSong:
		info, err := s.ctrl.Song()
		if err != nil {
			return writeErr(c, player.Code(err))
		}
		return writeJSON(c, info)

	case spec.CmdListSongs:
		if s.songs == nil {
			return writeJSON(c, []string{})
		}
		names, err := s.songs.ListSongs()
		if err != nil {
			s.log.WithError(err).Warn("list songs")
			return writeErr(c, spec.CodeInternal)
		}
		if names == nil {
			names = []string{}
		}
		return writeJSON(c, names)

	case spec.CmdSubscribe:
		s.subscribe(c)
		return c.writeLine(spec.OKPrefix + "SUBSCRIBED")
	}

	// === control, owner only ===
	if !isControl(cmd) {
		return writeErr(c, spec.CodeUnknown)
	}
	owner, claimed := s.claimOwner(c)
	if !owner {
		return writeErr(c, spec.CodeControlLocked)
	}
	if claimed {
		s.log.WithField("conn", c.id()).Info("control claimed")
		s.subscribe(c)
	}

	log := s.log.WithFields(logrus.Fields{"cmd": cmd, "arg": arg})

	switch cmd {
	case spec.CmdLoad:
		if arg == "" {
			return writeErr(c, spec.CodeArg)
		}
		if err := s.ctrl.Load(arg); err != nil {
			return s.fail(c, log, err)
		}
		return c.writeLine(spec.OKPrefix + "LOADED")

	case spec.CmdCue:
		if arg == "" {
			return writeErr(c, spec.CodeArg)
		}
		if err := s.ctrl.Cue(arg); err != nil {
			return s.fail(c, log, err)
		}
		return c.writeLine(spec.OKPrefix + "CUED")

	case spec.CmdPlay:
		nums, ok := ints(arg, 2)
		if !ok {
			return writeErr(c, spec.CodeArg)
		}
		start, loop := 0, 0
		if len(nums) > 0 {
			start = nums[0]
		}
		if len(nums) > 1 {
			loop = nums[1]
		}
		if err := s.ctrl.Play(start, loop); err != nil {
			return s.fail(c, log, err)
		}
		return c.writeLine(spec.OKPrefix + "PLAYING")

	case spec.CmdStop:
		if err := s.ctrl.Stop(); err != nil {
			return s.fail(c, log, err)
		}
		return c.writeLine(spec.OKPrefix + "STOPPED")

	case spec.CmdTransition:
		f := strings.Fields(arg)
		if len(f) < 1 || len(f) > 2 {
			return writeErr(c, spec.CodeArg)
		}
		bar, err := strconv.Atoi(f[0])
		if err != nil {
			return writeErr(c, spec.CodeArg)
		}
		mode := player.OnNextBar
		if len(f) == 2 {
			if mode, err = player.ParseMode(f[1]); err != nil {
				return writeErr(c, spec.CodeArg)
			}
		}
		if err := s.ctrl.Transition(bar, mode); err != nil {
			return s.fail(c, log, err)
		}
		if mode == player.Immediate {
			return c.writeLine(spec.OKPrefix + "STARTED")
		}
		return c.writeLine(spec.OKPrefix + "SCHEDULED")

	case spec.CmdCancel:
		if s.ctrl.CancelPending() {
			return c.writeLine(spec.OKPrefix + "CANCELLED")
		}
		return c.writeLine(spec.OKPrefix + "IDLE")
	}
	return writeErr(c, spec.CodeUnknown)
}

func isControl(cmd string) bool {
	switch cmd {
	case spec.CmdLoad, spec.CmdCue, spec.CmdPlay, spec.CmdStop, spec.CmdTransition, spec.CmdCancel:
		return true
	}
	return false
}

// fail answers a rejected command. Domain errors are expected traffic and
// logged at debug; anything unmapped is an internal error.
func (s *Server) fail(c *conn, log *logrus.Entry, err error) error {
	code := player.Code(err)
	if code == spec.CodeInternal {
		log.WithError(err).Error("command failed")
	} else {
		log.WithError(err).Debug("command rejected")
	}
	return writeErr(c, code)
}

// ints parses up to limit whitespace separated integers.
func ints(arg string, limit int) ([]int, bool) {
	f := strings.Fields(arg)
	if len(f) > limit {
		return nil, false
	}
	out := make([]int, 0, len(f))
	for _, v := range f {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func writeErr(c *conn, code string) error {
	return c.writeLine(spec.ErrPrefix + code)
}

func writeJSON(c *conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return writeErr(c, spec.CodeInternal)
	}
	return c.writeLine(string(b))
}
