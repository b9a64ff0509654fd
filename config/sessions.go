package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TradingSession is one gating window the supervisor uses to decide
// whether the worker child should be running.
type TradingSession struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"` // "HH:MM", local time
	End   string `yaml:"end"`
}

// SessionSchedule is the full week's trading calendar plus the instrument
// universe the strategy subscribes to.
type SessionSchedule struct {
	Sessions    []TradingSession `yaml:"sessions"`
	Products    []string         `yaml:"products"`
	VariantName string           `yaml:"variant_name"`
}

// LoadSessionSchedule reads a YAML file in the shape above.
func LoadSessionSchedule(path string) (*SessionSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session schedule: %w", err)
	}
	var sched SessionSchedule
	if err := yaml.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("parse session schedule: %w", err)
	}
	return &sched, nil
}

// InSession reports whether now falls inside any configured session window.
func (s *SessionSchedule) InSession(now time.Time) bool {
	for _, sess := range s.Sessions {
		start, err1 := time.ParseInLocation("15:04", sess.Start, now.Location())
		end, err2 := time.ParseInLocation("15:04", sess.End, now.Location())
		if err1 != nil || err2 != nil {
			continue
		}
		startToday := time.Date(now.Year(), now.Month(), now.Day(), start.Hour(), start.Minute(), 0, 0, now.Location())
		endToday := time.Date(now.Year(), now.Month(), now.Day(), end.Hour(), end.Minute(), 0, 0, now.Location())
		if endToday.Before(startToday) {
			// overnight session, e.g. night trading 21:00-02:30
			if !now.Before(startToday) || now.Before(endToday) {
				return true
			}
			continue
		}
		if !now.Before(startToday) && now.Before(endToday) {
			return true
		}
	}
	return false
}
