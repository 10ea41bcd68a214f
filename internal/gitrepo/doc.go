// Package gitrepo contains helpers for interrogating Git repositories.
//
// It derives short repository names from remote URLs and provides two
// repository clients: CLIClient, which shells out to git through execshell,
// and GoGitClient, which reads the object database in-process with go-git.
package gitrepo
