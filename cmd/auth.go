package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotstats/internal/services"
	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthURL prints the authorization URL built from the configured client id, redirect URI and scope.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	spotify := config.Credentials.Spotify
	if spotify.ClientID == "" || spotify.RedirectURI == "" {
		return fmt.Errorf("%w: CLIENT_ID and REDIRECT_URI are required", shared.ErrMissingConfig)
	}

	authURL := services.BuildAuthorizationURL(spotify.ClientID, spotify.RedirectURI, spotify.Scope)

	if err := r.writeLine(r.palette.Title("Spotify authorization URL")); err != nil {
		return err
	}
	if err := r.writeLine(r.palette.URL(authURL)); err != nil {
		return err
	}

	if cmd.Bool("open") {
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			return r.writeLine(r.palette.Err("Could not open a browser; copy the URL above."))
		}
		return r.writeLine(r.palette.OK("Opened in browser"))
	}
	return nil
}
