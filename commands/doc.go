/*
Package commands implements the prefixed chat commands of the bot, most
notably the retrigger group used to manage triggers.

# Grammar summary

All lower case words are literal tokens. Tokens between < and > are
arguments; tokens between [ and ] are optional.

	prefix = the host's command prefix, e.g. !

	group = retrigger | rt

	create = kind <name> <regex> [response ...]
	kind = text | dm | random | image | imagetext | randomimage | resize |
	       ban | kick | react | command | mock | filter | addrole |
	       removerole | multi

	manage = list [name] | remove <name> | cooldown <name> <seconds> [scope] |
	         ignoreedits <name> | allowmultiple |
	         whitelist add|remove <name> <id ...> |
	         blacklist add|remove <name> <id ...>

	modlog = modlog settings | modlog toggle | modlog channel <channel|none|default>
	toggle = bans | kicks | filter | addroles | removeroles

	prefix group create|manage|modlog

# Grammar description

regex - a regular expression in the syntax of .NET and Python style engines,
such as lookarounds and backreferences. Wrap it in double quotes when it
contains spaces; backslashes inside quotes are kept as typed and \" stands for
a literal quote.

response - the rest of the line for text, dm, command and mock, emoji for
react, role mentions or ids for addrole and removerole, and
"kind;argument;argument" entries for multi.

scope - one of guild, server, channel, user or member. A cooldown of zero
seconds removes the cooldown.

id - a channel, user or role id, or a mention of one.

Image kinds take the first attachment of the command message, an image url
argument, or wait for the author to upload one. random and randomimage collect
follow-up messages until the author types exit.

A mock trigger runs a command as its author, so creating one requires the
author to confirm with a reaction.
*/
package commands
