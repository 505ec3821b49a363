// Package cmd provides the volt command-line interface.
//
// Configuration System:
//
//	Settings come from several sources, highest priority first:
//	1. Command-line flags (--views, --compiled-dir, --log-level, ...)
//	2. VOLT_<SECTION>_<OPTION> environment variables, including those
//	   loaded from .env files
//	3. The configuration file: --config, VOLT_CONFIG_FILE, or .volt.yml
//	   in the current directory
//	4. Built-in defaults
//
// # Available Commands
//
//   - compile: compile templates into text/template artifacts
//   - render: render a template with JSON/YAML data and --set variables
//   - list: list templates with artifact status
//   - watch: recompile on change, optionally serving Prometheus metrics
//   - clean: remove compiled artifacts
//   - config: show or validate the resolved configuration
//   - version: print build information
//
// # Command Examples
//
//	volt compile --force -j 4
//	volt render pages/home --data vars.yaml --set user.name=Ann
//	volt list -o json --with-deps
package cmd
