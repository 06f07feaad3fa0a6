// Package preview runs the live-reload development server.
//
// Run builds the site once, serves the output directory and watches the
// project sources. File events are coalesced by a BuildDebouncer into
// BuildNow events, each of which triggers an incremental build. Browsers
// connected to the server-sent event stream at LiveReloadPath reload when a
// build changed their outputs, swap stylesheets when only CSS changed, and
// show an error overlay while the last build is failing.
package preview
