package cmd

import (
	"github.com/fatih/color"
)

// Messages are printed to stderr, since stdout carries the received bytes.

// printInfo prints an informational message to the screen.
func printInfo(message string) {
	message = "[+] " + message

	color.New(color.FgGreen, color.Bold).Fprintln(color.Error, message)
}

// printWarn prints a warning to the screen.
func printWarn(message string) {
	message = "[-] " + message

	color.New(color.FgYellow, color.Bold).Fprintln(color.Error, message)
}

// printError prints an error to the screen.
func printError(err error) {
	message := "[!] " + err.Error()

	color.New(color.FgRed, color.Bold).Fprintln(color.Error, message)
}
