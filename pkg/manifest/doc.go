/*
Package manifest persists incremental build state for the site builder in a
SQLite database.

It remembers the size and modification time of every passthrough file that
was copied to the output tree, so unchanged files can be skipped on the next
build, and keeps a log of build runs for reporting. Any database/sql SQLite
driver works; the caller opens the database and calls SetupSchema once.
*/
package manifest
