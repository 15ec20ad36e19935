// Package runserver launches a project's package-manager start command and
// streams its standard output to the console.
package runserver

// Version is the runserver release version.
const Version = "v0.3.0"
