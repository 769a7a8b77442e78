package cli

import "fmt"

func printColored(text, colorCode string) {
	fmt.Printf("\033[%sm%s\033[0m\n", colorCode, text)
}

func printSuccess(message string) {
	printColored("SUCCESS: "+message, "32")
}

func printError(message string) {
	printColored("ERROR: "+message, "31")
}

func printInfo(message string) {
	printColored("INFO: "+message, "34")
}
