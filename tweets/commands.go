package tweets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobridge/retrigger/commands"
)

// Register adds the tweets and autotweet command groups to router.
func (r *Relay) Register(router *commands.Router, h commands.Host) {
	router.Register(&commands.Command{
		Name:    "tweets",
		Aliases: []string{"twitter"},
		Help:    "Gets various information from Twitter's API",
		Handler: commands.HandlerFunc(func(ctx context.Context, req *commands.Request, resp commands.Responder) {
			if len(req.Args) == 0 {
				resp.Respond(ctx, "Usage: `tweets getuser <username>|gettweets <username> [count]|send <message>`")
				return
			}
			switch strings.ToLower(req.Args[0]) {
			case "getuser":
				r.getUser(ctx, req, resp)
			case "gettweets":
				r.getTweets(ctx, req, resp)
			case "send":
				commands.Require(h, commands.PermAdministrator, commands.HandlerFunc(r.send)).Handle(ctx, req, resp)
			default:
				resp.Respond(ctx, "Usage: `tweets getuser <username>|gettweets <username> [count]|send <message>`")
			}
		}),
	})

	router.Register(&commands.Command{
		Name:      "autotweet",
		Help:      "Relay tweets of followed accounts into channels",
		GuildOnly: true,
		Handler: commands.Require(h, commands.PermAdministrator, commands.HandlerFunc(func(ctx context.Context, req *commands.Request, resp commands.Responder) {
			if len(req.Args) == 0 {
				resp.Respond(ctx, "Usage: `autotweet add|del|list|replies|restart|error`")
				return
			}
			switch strings.ToLower(req.Args[0]) {
			case "add":
				r.add(ctx, req, resp)
			case "del", "delete", "rem", "remove":
				r.del(ctx, req, resp)
			case "list":
				r.list(ctx, req, resp)
			case "replies":
				r.replies(ctx, req, resp)
			case "restart":
				r.Restart()
				resp.Respond(ctx, "Restarting the twitter stream.")
			case "error":
				ch := req.Message.ChannelID
				if len(req.Args) > 1 {
					ch = commands.ParseID(req.Args[1])
				}
				r.SetErrorChannel(ch)
				resp.Respond(ctx, fmt.Sprintf("Twitter error messages will be sent to <#%s>.", ch))
			default:
				resp.Respond(ctx, "Usage: `autotweet add|del|list|replies|restart|error`")
			}
		})),
	})
}

// channelArg returns the channel named after n arguments or the channel of
// the command.
func channelArg(req *commands.Request, n int) string {
	if len(req.Args) > n {
		return commands.ParseID(req.Args[n])
	}
	return req.Message.ChannelID
}

func (r *Relay) getUser(ctx context.Context, req *commands.Request, resp commands.Responder) {
	if len(req.Args) < 2 {
		resp.Respond(ctx, "Usage: `tweets getuser <username>`")
		return
	}
	u, err := r.Lookup(ctx, req.Args[1])
	if err != nil {
		resp.Respond(ctx, "That username does not exist.")
		return
	}
	resp.Respond(ctx, fmt.Sprintf("**%s** (@%s)\n%s\n**Followers:** %d\n**Following:** %d\n**Tweets:** %d\nhttps://twitter.com/%s",
		u.Name, u.ScreenName, u.Description, u.FollowersCount, u.FriendsCount, u.StatusesCount, u.ScreenName))
}

func (r *Relay) getTweets(ctx context.Context, req *commands.Request, resp commands.Responder) {
	if len(req.Args) < 2 {
		resp.Respond(ctx, "Usage: `tweets gettweets <username> [count]`")
		return
	}
	count := 10
	if len(req.Args) > 2 {
		n, err := strconv.Atoi(req.Args[2])
		if err != nil || n <= 0 {
			resp.Respond(ctx, "Count must be a positive number.")
			return
		}
		count = n
	}
	tweets, err := r.Timeline(ctx, req.Args[1], count)
	if err != nil {
		resp.Respond(ctx, "I couldn't get tweets for that user.")
		return
	}
	if len(tweets) == 0 {
		resp.Respond(ctx, "That user hasn't tweeted anything.")
		return
	}
	for _, t := range tweets {
		resp.Respond(ctx, Format(t))
	}
}

func (r *Relay) send(ctx context.Context, req *commands.Request, resp commands.Responder) {
	status := strings.TrimSpace(strings.TrimPrefix(req.Rest, req.Args[0]))
	if status == "" {
		resp.Respond(ctx, "Usage: `tweets send <message>`")
		return
	}
	t, err := r.Send(ctx, status)
	if err != nil {
		resp.Respond(ctx, "I couldn't send that tweet.")
		return
	}
	resp.Respond(ctx, "Tweet sent! "+StatusURL(t))
}

func (r *Relay) add(ctx context.Context, req *commands.Request, resp commands.Responder) {
	if len(req.Args) < 2 {
		resp.Respond(ctx, "Usage: `autotweet add <username> [channel]`")
		return
	}
	ch := channelArg(req, 2)
	a, err := r.Follow(ctx, req.Args[1], ch)
	if errors.Is(err, ErrUnknownUser) {
		resp.Respond(ctx, "That is not a valid Twitter username!")
		return
	}
	if errors.Is(err, ErrNotSaved) {
		resp.Respond(ctx, fmt.Sprintf("%s added to <#%s>, but I couldn't save it and it will be forgotten on restart.", a.ScreenName, ch))
		return
	}
	if err != nil {
		resp.Respond(ctx, "I couldn't reach Twitter, try again later.")
		return
	}
	resp.Respond(ctx, fmt.Sprintf("%s added to <#%s>!", a.ScreenName, ch))
}

func (r *Relay) del(ctx context.Context, req *commands.Request, resp commands.Responder) {
	if len(req.Args) < 2 {
		resp.Respond(ctx, "Usage: `autotweet del <username> [channel]`")
		return
	}
	ch := channelArg(req, 2)
	ok, err := r.Unfollow(ctx, req.Args[1], ch)
	if !ok {
		resp.Respond(ctx, fmt.Sprintf("%s is not posting in <#%s>!", req.Args[1], ch))
		return
	}
	if err != nil {
		resp.Respond(ctx, fmt.Sprintf("%s removed from <#%s>, but I couldn't save that and it will be back after a restart.", req.Args[1], ch))
		return
	}
	resp.Respond(ctx, fmt.Sprintf("%s removed from <#%s>!", req.Args[1], ch))
}

func (r *Relay) list(ctx context.Context, req *commands.Request, resp commands.Responder) {
	var lines []string
	for _, a := range r.Accounts() {
		if contains(a.Channels, req.Message.ChannelID) || len(req.Args) > 1 && req.Args[1] == "all" {
			lines = append(lines, fmt.Sprintf("%s: <#%s>", a.ScreenName, strings.Join(a.Channels, ">, <#")))
		}
	}
	if len(lines) == 0 {
		resp.Respond(ctx, "I don't seem to have autotweet setup here!")
		return
	}
	resp.Respond(ctx, "Twitter accounts posting here:\n"+strings.Join(lines, "\n"))
}

func (r *Relay) replies(ctx context.Context, req *commands.Request, resp commands.Responder) {
	if len(req.Args) < 2 {
		resp.Respond(ctx, "Usage: `autotweet replies <username>`")
		return
	}
	on, err := r.ToggleReplies(ctx, req.Args[1])
	if errors.Is(err, ErrUnknownUser) {
		resp.Respond(ctx, fmt.Sprintf("%s is not in my list of followed users!", req.Args[1]))
		return
	}
	if err != nil {
		resp.Respond(ctx, "I changed that but couldn't save it, it will be undone on restart.")
		return
	}
	if on {
		resp.Respond(ctx, fmt.Sprintf("%s will have replies posted!", req.Args[1]))
		return
	}
	resp.Respond(ctx, fmt.Sprintf("%s will not have replies posted!", req.Args[1]))
}
