package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// Sections lists the top-level keys whose values differ, in file order.
	Sections []string

	LogLevelChanged bool
	NewLogLevel     LogLevel

	PersonaChanged  bool
	VADChanged      bool
	ScheduleChanged bool
}

// Reloadable reports whether every change can be applied between sessions
// without a restart: persona, VAD tuning, log level and schedule.
func (d ConfigDiff) Reloadable() bool {
	for _, s := range d.Sections {
		switch s {
		case "vad", "schedule":
		case "server", "session":
			// Only log_level and persona are picked up; the caller checks
			// the flags for those.
		default:
			return false
		}
	}
	return true
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", old.Server, new.Server},
		{"providers", old.Providers, new.Providers},
		{"audio", old.Audio, new.Audio},
		{"vad", old.VAD, new.VAD},
		{"session", old.Session, new.Session},
		{"dictation", old.Dictation, new.Dictation},
		{"settings", old.Settings, new.Settings},
		{"archive", old.Archive, new.Archive},
		{"journal", old.Journal, new.Journal},
		{"notify", old.Notify, new.Notify},
		{"schedule", old.Schedule, new.Schedule},
		{"transcript", old.Transcript, new.Transcript},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.Sections = append(d.Sections, s.name)
		}
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.PersonaChanged = old.Session.Persona != new.Session.Persona
	d.VADChanged = old.VAD != new.VAD
	d.ScheduleChanged = old.Schedule != new.Schedule
	return d
}
