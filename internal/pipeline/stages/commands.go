package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// commandCall is one invocation of a built-in command.
type commandCall struct {
	pctx   *ports.PipelineContext
	ev     *domain.Event
	name   string
	args   []string
	prefix string
}

type commandFunc func(ctx context.Context, c *commandCall) string

type builtinCommand struct {
	name        string
	aliases     []string
	usage       string
	description string
	adminOnly   bool
	run         commandFunc
}

// Commands is the table of built-in commands handled before plugin commands.
type Commands struct {
	byName map[string]*builtinCommand
	order  []*builtinCommand
}

// NewBuiltinCommands returns the built-in command table.
func NewBuiltinCommands() *Commands {
	c := &Commands{byName: make(map[string]*builtinCommand)}
	c.add(&builtinCommand{name: "help", description: "show this help", run: c.help})
	c.add(&builtinCommand{name: "ping", description: "check the bot is alive", run: ping})
	c.add(&builtinCommand{name: "sid", description: "show the current session id", run: sessionInfo})
	c.add(&builtinCommand{
		name: "plugins", aliases: []string{"plugin"},
		usage:       "list|enable|disable|reload|help <name>",
		description: "manage plugins",
		run:         plugins,
	})
	c.add(&builtinCommand{name: "op", usage: "<user id>", description: "grant admin", adminOnly: true, run: op})
	c.add(&builtinCommand{name: "deop", usage: "<user id>", description: "revoke admin", adminOnly: true, run: deop})
	c.add(&builtinCommand{name: "wl", usage: "[session id]", description: "whitelist a session", adminOnly: true, run: whitelistAdd})
	c.add(&builtinCommand{name: "dwl", usage: "[session id]", description: "remove a session from the whitelist", adminOnly: true, run: whitelistRemove})
	return c
}

func (c *Commands) add(cmd *builtinCommand) {
	c.order = append(c.order, cmd)
	c.byName[cmd.name] = cmd
	for _, alias := range cmd.aliases {
		c.byName[alias] = cmd
	}
}

// Lookup resolves a command name or alias, case-insensitively.
func (c *Commands) Lookup(name string) (string, bool) {
	cmd, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return cmd.name, true
}

// Run executes a built-in command. handled is false for unknown names.
func (c *Commands) Run(ctx context.Context, call *commandCall) (reply string, handled bool) {
	cmd, ok := c.byName[strings.ToLower(call.name)]
	if !ok {
		return "", false
	}
	call.name = cmd.name

	if cmd.adminOnly {
		acl := call.pctx.ACL
		if acl == nil {
			return "Admin commands are unavailable: no ACL is configured.", true
		}
		if acl.HasAdmins() && !acl.IsAdmin(call.ev.SenderID) {
			call.pctx.Log().Info("admin command refused",
				slog.String("command", cmd.name),
				slog.String("user", call.ev.SenderID),
			)
			return "Permission denied: this command requires an admin.", true
		}
	}
	return cmd.run(ctx, call), true
}

func (c *Commands) help(ctx context.Context, call *commandCall) string {
	p := call.prefix
	var b strings.Builder
	b.WriteString("NekoBot help\n\nBuilt-in commands:\n")
	for _, cmd := range c.order {
		line := p + cmd.name
		if cmd.usage != "" {
			line += " " + cmd.usage
		}
		fmt.Fprintf(&b, "  %s - %s", line, cmd.description)
		if cmd.adminOnly {
			b.WriteString(" (admin)")
		}
		b.WriteString("\n")
	}

	if call.pctx.Plugins != nil {
		var section strings.Builder
		for _, info := range call.pctx.Plugins.Plugins() {
			if !info.Enabled || len(info.Commands) == 0 {
				continue
			}
			fmt.Fprintf(&section, "  [%s]\n", info.Name)
			for _, name := range info.Commands {
				fmt.Fprintf(&section, "    %s%s\n", p, name)
			}
		}
		if section.Len() > 0 {
			b.WriteString("\nPlugin commands:\n")
			b.WriteString(section.String())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func ping(ctx context.Context, call *commandCall) string {
	return "Pong!"
}

func sessionInfo(ctx context.Context, call *commandCall) string {
	ev := call.ev
	var b strings.Builder
	b.WriteString("Session info:\n")
	fmt.Fprintf(&b, "  platform: %s\n", ev.PlatformID)
	fmt.Fprintf(&b, "  user: %s\n", ev.SenderID)
	fmt.Fprintf(&b, "  type: %s\n", ev.Subtype)
	if !ev.IsPrivate() && ev.GroupID != "" {
		fmt.Fprintf(&b, "  group: %s\n", ev.GroupID)
	}
	fmt.Fprintf(&b, "  session: %s\n", ev.SessionID())
	fmt.Fprintf(&b, "  unified id: %s", ev.ConversationID())
	return b.String()
}

func plugins(ctx context.Context, call *commandCall) string {
	pm := call.pctx.Plugins
	if pm == nil {
		return "No plugin manager is configured."
	}

	action := "list"
	if len(call.args) > 0 {
		action = strings.ToLower(call.args[0])
	}
	usage := func(sub, arg string) string {
		return fmt.Sprintf("Usage: %splugins %s %s", call.prefix, sub, arg)
	}

	switch action {
	case "list":
		infos := pm.Plugins()
		if len(infos) == 0 {
			return "No plugins loaded."
		}
		var b strings.Builder
		b.WriteString("Loaded plugins:\n")
		for _, info := range infos {
			status := "disabled"
			if info.Enabled {
				status = "enabled"
			}
			version := info.Version
			if version == "" {
				version = "unknown version"
			}
			fmt.Fprintf(&b, "  %s (%s) - %s\n", info.Name, version, status)
		}
		fmt.Fprintf(&b, "\nUse %splugins help <name> for a plugin's commands.", call.prefix)
		return b.String()

	case "enable", "disable", "reload":
		if len(call.args) < 2 {
			return usage(action, "<name>")
		}
		name := call.args[1]
		var err error
		var done string
		switch action {
		case "enable":
			err, done = pm.Enable(name), "enabled"
		case "disable":
			err, done = pm.Disable(name), "disabled"
		default:
			err, done = pm.Reload(ctx, name), "reloaded"
		}
		if err != nil {
			return fmt.Sprintf("Failed to %s plugin %s: %v", action, name, err)
		}
		return fmt.Sprintf("Plugin %s %s.", name, done)

	case "help":
		if len(call.args) < 2 {
			return usage("help", "<name>")
		}
		text, err := pm.Help(call.args[1])
		if err != nil {
			return fmt.Sprintf("No such plugin: %s", call.args[1])
		}
		return text

	case "install", "uninstall":
		return fmt.Sprintf("plugins %s is not supported; plugins are compiled into the bot.", action)

	default:
		return fmt.Sprintf("Unknown subcommand: %s\nAvailable: list, enable, disable, reload, help", action)
	}
}

func op(ctx context.Context, call *commandCall) string {
	if len(call.args) == 0 {
		return fmt.Sprintf("Usage: %sop <user id>. Use %ssid to find ids.", call.prefix, call.prefix)
	}
	id := call.args[0]
	if call.pctx.ACL.IsAdmin(id) {
		return fmt.Sprintf("User %s is already an admin.", id)
	}
	if err := call.pctx.ACL.AddAdmin(id); err != nil {
		return fmt.Sprintf("Failed to grant admin: %v", err)
	}
	return fmt.Sprintf("User %s is now an admin.", id)
}

func deop(ctx context.Context, call *commandCall) string {
	if len(call.args) == 0 {
		return fmt.Sprintf("Usage: %sdeop <user id>. Use %ssid to find ids.", call.prefix, call.prefix)
	}
	id := call.args[0]
	if !call.pctx.ACL.IsAdmin(id) {
		return fmt.Sprintf("User %s is not an admin.", id)
	}
	if err := call.pctx.ACL.RemoveAdmin(id); err != nil {
		return fmt.Sprintf("Failed to revoke admin: %v", err)
	}
	return fmt.Sprintf("User %s is no longer an admin.", id)
}

func whitelistAdd(ctx context.Context, call *commandCall) string {
	sid := call.ev.SessionID()
	if len(call.args) > 0 {
		sid = call.args[0]
	}
	if call.pctx.ACL.Allowed(sid) {
		return fmt.Sprintf("Session %s is already whitelisted.", sid)
	}
	if err := call.pctx.ACL.Allow(sid); err != nil {
		return fmt.Sprintf("Failed to whitelist: %v", err)
	}
	return fmt.Sprintf("Session %s added to the whitelist.", sid)
}

func whitelistRemove(ctx context.Context, call *commandCall) string {
	sid := call.ev.SessionID()
	if len(call.args) > 0 {
		sid = call.args[0]
	}
	if !call.pctx.ACL.Allowed(sid) {
		return fmt.Sprintf("Session %s is not whitelisted.", sid)
	}
	if err := call.pctx.ACL.Disallow(sid); err != nil {
		return fmt.Sprintf("Failed to update the whitelist: %v", err)
	}
	return fmt.Sprintf("Session %s removed from the whitelist.", sid)
}
