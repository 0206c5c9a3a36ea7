package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdScrapeNow CommandType = "scrape_now"
	CmdScrapeZip CommandType = "scrape_zip"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
)

type Command struct {
	ID        int64           `json:"id" db:"id"`
	Command   CommandType     `json:"command" db:"command"`
	Params    json.RawMessage `json:"params" db:"params"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type CommandParams struct {
	ZipCode string `json:"zipCode,omitempty"`
	URLType string `json:"urlType,omitempty"`
}
