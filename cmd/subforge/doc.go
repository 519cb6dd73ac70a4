// Command subforge is the command-line front end: it runs single jobs
// in-process, talks to a running subforged over HTTP, and carries the
// configuration and maintenance utilities.
package main
