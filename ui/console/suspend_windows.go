package console

import "github.com/darkhz/tview"

func suspend(*tview.Application) {}
