// Package config handles configuration loading for botdesk.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BOTDESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/botdesk/config.yaml
//  3. ~/.config/botdesk/config.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML. A missing
// file is not an error for LoadOrDefault, which falls back to Default.
//
// # Environment
//
// A .env file in the same directory is loaded first. Variables already set
// in the process win over the file. Values can then reference them:
//
//	remote:
//	  base_url: "${BOTDESK_REMOTE_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Remote service:
//
//	remote:
//	  base_url: "http://localhost:8080"  # POST /chat is sent here
//	  timeout: "60s"
//
// Storage:
//
//	storage:
//	  driver: "sqlite"        # sqlite, bolt, memory
//	  path: ""                # empty means $XDG_DATA_HOME/botdesk/botdesk.db
//	  poll_interval: "1s"     # "0" turns off cross-process change detection
//
// Attachments:
//
//	attachments:
//	  allowed_extensions: [".pdf"]
//	  max_bytes: 10485760
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Starter prompts:
//
//	suggestions:
//	  - "Analyze my Market"
//	  - "Review Business Plan"
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
