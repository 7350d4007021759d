package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/hosthub/hubchat/internal/app"
	"github.com/hosthub/hubchat/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	apiURL := flag.String("api-url", "", "REST API base URL (overrides config)")
	socketURL := flag.String("socket-url", "", "realtime socket URL (overrides config)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fx.New(
		app.Module(app.Params{
			Profile:   profile,
			APIURL:    *apiURL,
			SocketURL: *socketURL,
		}),
	).Run()
}
