package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"moments/feed"
)

func postCmd() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Post a new moment",
		Description: `Posts a moment to the moments service.

		Asks for the text interactively when --text is not given. Moments
		without an author name are shown as posted by Anonymous.`,
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:    "text",
				Aliases: []string{"t"},
				Usage:   "Text of the moment",
			},
			&cli.StringFlag{
				Name:    "author",
				Aliases: []string{"a"},
				Usage:   "Author name, leave empty to post anonymously",
				EnvVars: []string{"MOMENTS_AUTHOR"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := clientConfig(ctx)
			if err != nil {
				return err
			}

			author := cfg.Client.AuthorName
			if ctx.IsSet("author") {
				author = ctx.String("author")
			}

			text := ctx.String("text")
			if !ctx.IsSet("text") {
				text, err = prompt.New().Ask("Moment:").Input("What are you up to?")
				if err != nil {
					return err
				}
				if !ctx.IsSet("author") && author == "" {
					author, err = prompt.New().Ask("Author name:").Input("Anonymous")
					if err != nil {
						return err
					}
				}
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			ctrl := newController(ctx.Context, client, cfg)
			defer ctrl.Close()

			if err := submit(ctx.Context, ctx.App.Writer, ctrl, text, author); err != nil {
				return userError(err)
			}
			return nil
		},
	}
}

// submit posts a moment through ctrl and waits for the server's answer
func submit(ctx context.Context, w io.Writer, ctrl *feed.Controller, text string, author string) error {
	key, events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(key)

	if err := ctrl.Submit(text, author); err != nil {
		return err
	}

	if _, err := waitFor(ctx, events, feed.OpSubmit); err != nil {
		return err
	}

	fmt.Fprintln(w, "Moment posted.")
	return nil
}
