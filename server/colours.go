package server

import "fmt"

const (
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColours = map[string]string{
	"GET":    ansiGreen,
	"POST":   ansiBlue,
	"PUT":    ansiCyan,
	"DELETE": ansiYellow,
	"PATCH":  ansiMagenta,
}

func paint(colour, s string) string {
	return colour + s + ansiReset
}

func paintMethod(method string) string {
	colour, ok := methodColours[method]
	if !ok {
		colour = ansiGray
	}
	return paint(colour, fmt.Sprintf(" %-7s", method))
}

func paintStatus(status int) string {
	colour := ansiGreen
	switch {
	case status >= 500:
		colour = ansiRed
	case status >= 400:
		colour = ansiYellow
	case status >= 300:
		colour = ansiCyan
	}
	return paint(colour, fmt.Sprintf("%d", status))
}
