package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Pactl runs a pactl subcommand and returns its stdout.
type Pactl func(ctx context.Context, args ...string) ([]byte, error)

func execPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker fades PulseAudio sink inputs of other applications down while
// the assistant listens or speaks, and restores them afterwards.
// Streams whose application.name is in selfNames are left alone.
type Ducker struct {
	mu          sync.Mutex
	active      bool
	selfNames   []string
	originalVol map[int]int
	minVolume   int
	pactl       Pactl
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	return &Ducker{
		selfNames:   append([]string(nil), selfNames...),
		originalVol: make(map[int]int),
		minVolume:   clampVolume(minVolume),
		pactl:       execPactl,
	}
}

// WithPactl swaps the pactl runner.
func (d *Ducker) WithPactl(p Pactl) *Ducker {
	d.pactl = p
	return d
}

// Duck scales every foreign stream by factor, never below minVolume.
func (d *Ducker) Duck(ctx context.Context, factor float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.originalVol = make(map[int]int)
	var targets []fadeTarget

	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(math.Max(float64(s.Volume)*factor, float64(d.minVolume))))
		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: clampVolume(to)})
	}

	d.active = true
	if len(targets) == 0 {
		return nil
	}
	return d.fade(ctx, targets, duration)
}

// Unduck restores the streams touched by Duck. Streams that appeared
// in between are ignored.
func (d *Ducker) Unduck(ctx context.Context, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}
	defer func() {
		d.originalVol = make(map[int]int)
		d.active = false
	}()

	streams, err := d.listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		if orig, ok := d.originalVol[s.ID]; ok {
			targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
		}
	}

	if len(targets) == 0 {
		return nil
	}
	return d.fade(ctx, targets, duration)
}

func (d *Ducker) isSelf(s streamInfo) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) fade(ctx context.Context, targets []fadeTarget, duration time.Duration) error {
	const minStep = 10 * time.Millisecond

	steps := int(duration / minStep)
	if steps < 1 {
		steps = 1
	}
	stepDur := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.setVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps && stepDur > 0 {
			time.Sleep(stepDur)
		}
	}
	return nil
}

func (d *Ducker) listStreams(ctx context.Context) ([]streamInfo, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clampVolume(percent)))
	return err
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []streamInfo {
	parts := strings.Split(text, "Sink Input #")
	var res []streamInfo

	for _, block := range parts[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if i := strings.IndexByte(line, '"'); i >= 0 {
					rest := line[i+1:]
					if j := strings.IndexByte(rest, '"'); j >= 0 {
						s.AppName = rest[:j]
					}
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 150 {
		return 150
	}
	return v
}
