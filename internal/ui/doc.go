// Package ui renders git command events as short console messages for people following a collection run.
package ui
