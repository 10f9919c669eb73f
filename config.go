package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/yarl/rl"
)

type Config struct {
	Prompt             string `json:"prompt"`
	ContinuationPrompt string `json:"continuation_prompt"`
	LuaPrompt          string `json:"lua_prompt"`
	Editor             string `json:"editor"`
	HistorySize        int    `json:"history_size"`
	HistoryFile        string `json:"history_file"`
	InitFile           string `json:"init_file"`
	WatchInitFile      bool   `json:"watch_init_file"`
	NoReentrant        bool   `json:"no_reentrant"`
	EventHook          bool   `json:"event_hook"`
	KeyseqTimeoutMS    int    `json:"keyseq_timeout_ms"`
	LineBufferSize     int    `json:"line_buffer_size"`
	BracketedPaste     *bool  `json:"bracketed_paste"`
	SmartComplete      bool   `json:"smart_complete"`
}

var appConfig = Config{
	Prompt:             "go> ",
	ContinuationPrompt: "... ",
	LuaPrompt:          "lua> ",
	Editor:             "readline",
	EventHook:          true,
	LineBufferSize:     4096,
}

func loadConfig(configDir string) error {
	path := filepath.Join(configDir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &appConfig)
}

// prompt returns the primary prompt for the named language.
func (c *Config) prompt(lang string) string {
	if lang == "lua" {
		return c.LuaPrompt
	}
	return c.Prompt
}

// initFile returns the init file to read, "" for none.
func (c *Config) initFile(configDir string) string {
	if c.InitFile != "" {
		return c.InitFile
	}
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "inputrc")
}

// settings returns the editor settings the config overrides. An init
// file read later may change them again.
func (c *Config) settings() rl.Settings {
	s := rl.DefaultSettings()
	if c.HistorySize > 0 {
		s.HistorySize = c.HistorySize
	}
	if c.KeyseqTimeoutMS > 0 {
		s.KeyseqTimeout = time.Duration(c.KeyseqTimeoutMS) * time.Millisecond
	}
	if c.BracketedPaste != nil {
		s.BracketedPaste = *c.BracketedPaste
	}
	return s
}
