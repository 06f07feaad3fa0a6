// Package build is the incremental build scheduler.
//
// An Engine owns every piece of state that survives between builds: the
// parsed content, the template library, the dependency graph, the execution
// engine with its cache, and the registry of written outputs. RunFullBuild
// processes the whole project. RunIncrementalBuild re-parses only the
// changed files, walks the dependency graph to find every affected entity,
// and re-renders just those. Builds never overlap; a concurrent call fails
// with ErrBuildInProgress.
//
// Every build produces a Report. Reports are appended to the build history
// and published to subscribers as events.OutputsChanged.
package build
