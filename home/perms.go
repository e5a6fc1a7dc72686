package home

import (
	"cmp"
	"slices"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

const sendPermissions = discord.PermissionViewChannel | discord.PermissionSendMessages

type roleLookup func(roleID snowflake.ID) (discord.Role, bool)

// effectivePermissions resolves a member's permissions in a channel from the
// guild roles and the channel overwrites.
func effectivePermissions(guild discord.Guild, roles roleLookup, overwrites []discord.PermissionOverwrite, member discord.Member) discord.Permissions {
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	var perms discord.Permissions
	if everyone, ok := roles(guild.ID); ok {
		perms |= everyone.Permissions
	}
	for _, roleID := range member.RoleIDs {
		if role, ok := roles(roleID); ok {
			perms |= role.Permissions
		}
	}

	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}

	for _, o := range overwrites {
		if o.ID() == guild.ID {
			if ro, ok := o.(discord.RolePermissionOverwrite); ok {
				perms &^= ro.Deny
				perms |= ro.Allow
			}
			break
		}
	}

	var roleAllow, roleDeny discord.Permissions
	for _, o := range overwrites {
		for _, roleID := range member.RoleIDs {
			if o.ID() == roleID {
				if ro, ok := o.(discord.RolePermissionOverwrite); ok {
					roleDeny |= ro.Deny
					roleAllow |= ro.Allow
				}
				break
			}
		}
	}
	perms &^= roleDeny
	perms |= roleAllow

	for _, o := range overwrites {
		if o.ID() == member.User.ID {
			if mo, ok := o.(discord.MemberPermissionOverwrite); ok {
				perms &^= mo.Deny
				perms |= mo.Allow
			}
			break
		}
	}

	return perms
}

// canSend reports whether the bot can post in a cached guild text channel.
func canSend(client *bot.Client, channel discord.GuildChannel) bool {
	if _, ok := channel.(discord.GuildMessageChannel); !ok {
		return false
	}
	guild, ok := client.Caches.Guild(channel.GuildID())
	if !ok {
		return false
	}
	self, ok := client.Caches.Member(guild.ID, client.ApplicationID)
	if !ok {
		return false
	}
	roles := func(id snowflake.ID) (discord.Role, bool) { return client.Caches.Role(guild.ID, id) }
	return effectivePermissions(guild, roles, channel.PermissionOverwrites(), self).Has(sendPermissions)
}

// sendableChannels lists guild text channels the bot can post in, capped at
// the select menu limit.
func sendableChannels(client *bot.Client, guildID snowflake.ID, limit int) []discord.GuildChannel {
	var out []discord.GuildChannel
	for ch := range client.Caches.Channels() {
		if ch.GuildID() != guildID || ch.Type() != discord.ChannelTypeGuildText {
			continue
		}
		if !canSend(client, ch) {
			continue
		}
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b discord.GuildChannel) int { return cmp.Compare(a.Position(), b.Position()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
