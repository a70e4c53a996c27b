// Package config handles configuration loading for pricewise.
//
// # Overview
//
// Configuration starts from built-in defaults, is overlaid with an optional
// YAML or TOML file, then with environment variables, and is validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PRICEWISE_CONFIG environment variable
//  2. ./pricewise.yaml or ./pricewise.toml (current directory)
//  3. ~/.config/pricewise/config.yaml
//
// Files ending in .toml are parsed as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Environment Overrides
//
//	PRICEWISE_HTTP_ADDR      server.http_addr
//	ALLOWED_ORIGINS          server.allowed_origins (comma separated)
//	USE_MEMORY_SAVER=true    checkpoint.backend = memory
//	CHECKPOINT_BACKEND       checkpoint.backend
//	CHECKPOINT_POSTGRES_URI  checkpoint.postgres_uri (selects postgres unless a backend is set)
//	PRICEWISE_DB_PATH        checkpoint.path
//	OPENAI_API_KEY           llm.api_key
//	OPENAI_MODEL             llm.model
//	OPENAI_BASE_URL          llm.base_url
//	TAVILY_API_KEY           search.api_key
//	PRICEWISE_LOG_LEVEL      logging.level
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  allowed_origins: ["http://localhost:3000"]
//	  shutdown_timeout: "10s"
//
//	checkpoint:
//	  backend: "sqlite"            # memory, sqlite, postgres
//	  path: "./data/pricewise.db"
//	  postgres_uri: ""
//
//	llm:
//	  model: "gpt-4o-mini"
//
//	search:
//	  max_results: 5
//	  topic: "general"
//	  cache_ttl: "10m"
//
//	agent:
//	  keep_recent: 5
//	  max_steps: 25
//	  interrupt_before_tools: false
//	  require_approval: ["search_product", "add_to_wishlist"]
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() fails when either API key is missing, the checkpoint backend is
// unknown or lacks its path or connection string, or a duration does not
// parse.
package config
