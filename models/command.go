package models

import "time"

type CommandType string

const (
	CmdRunNow       CommandType = "run_now"
	CmdReloadConfig CommandType = "reload_config"
	CmdPause        CommandType = "pause"
	CmdResume       CommandType = "resume"
	CmdHealthcheck  CommandType = "healthcheck"
)

func (c CommandType) Valid() bool {
	switch c {
	case CmdRunNow, CmdReloadConfig, CmdPause, CmdResume, CmdHealthcheck:
		return true
	}
	return false
}

type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}
