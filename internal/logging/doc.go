// Package logging provides opt-in file-based logging with rotation for embedsearch.
// Setup writes JSON logs to the configured file, and SetupMCPMode writes them to
// ~/.embedsearch/logs/server.log; the viewer reads those files.
//
// The embedsearch command does not call Setup or SetupMCPMode: it logs to stderr
// only, at the level given by --log-level or the configured log_level.
package logging
