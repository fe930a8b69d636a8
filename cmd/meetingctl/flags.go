package main

import (
	"flag"
	"os"
	"strconv"
)

// cliConfig 命令行参数，未指定时读取环境变量
type cliConfig struct {
	ServerURL    string
	Name         string
	UserID       string
	IdentityPath string
	DeckPath     string
	CanControl   bool
	Offline      bool
}

func parseFlags(args []string) (cliConfig, error) {
	var cfg cliConfig

	fs := flag.NewFlagSet("meetingctl", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "s", "", "Sync backend URL")
	fs.StringVar(&cfg.Name, "n", "", "Display name")
	fs.StringVar(&cfg.UserID, "u", "", "Authenticated user id (optional)")
	fs.StringVar(&cfg.IdentityPath, "identity", "", "File holding this device's voter id")
	fs.StringVar(&cfg.DeckPath, "deck", "", "Slide deck YAML file")
	control := fs.String("control", "", "Allow meeting controls (true/false)")
	fs.BoolVar(&cfg.Offline, "offline", false, "Do not connect to the backend")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = os.Getenv("MEETING_SERVER")
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8090"
	}
	if cfg.Name == "" {
		cfg.Name = os.Getenv("MEETING_NAME")
	}
	if cfg.UserID == "" {
		cfg.UserID = os.Getenv("MEETING_USER_ID")
	}
	if cfg.DeckPath == "" {
		cfg.DeckPath = os.Getenv("MEETING_DECK")
	}

	if *control == "" {
		*control = os.Getenv("MEETING_CONTROL")
	}
	cfg.CanControl = true
	if *control != "" {
		v, err := strconv.ParseBool(*control)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.CanControl = v
	}

	return cfg, nil
}
