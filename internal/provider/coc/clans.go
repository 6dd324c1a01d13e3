package coc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/albapepper/donation-tracker/internal/provider"
)

type clanRaw struct {
	Tag     string `json:"tag"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type memberRaw struct {
	Tag               string `json:"tag"`
	Name              string `json:"name"`
	Donations         int    `json:"donations"`
	DonationsReceived int    `json:"donationsReceived"`
}

type membersPage struct {
	Items  []memberRaw `json:"items"`
	Paging paging      `json:"paging"`
}

// GetClan fetches a clan profile.
func (c *Client) GetClan(ctx context.Context, tag string) (*provider.Clan, error) {
	tag = provider.NormalizeTag(tag)
	var raw clanRaw
	if err := c.getJSON(ctx, "/clans/"+url.PathEscape(tag), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch clan %s: %w", tag, err)
	}
	return &provider.Clan{Tag: provider.NormalizeTag(raw.Tag), Name: raw.Name, Members: raw.Members}, nil
}

// GetMembers fetches the full member list of a clan, following cursors.
func (c *Client) GetMembers(ctx context.Context, tag string) ([]provider.ClanMember, error) {
	tag = provider.NormalizeTag(tag)
	path := "/clans/" + url.PathEscape(tag) + "/members"

	var members []provider.ClanMember
	params := url.Values{}
	for {
		var page membersPage
		if err := c.getJSON(ctx, path, params, &page); err != nil {
			return nil, fmt.Errorf("fetch members of %s: %w", tag, err)
		}
		for _, m := range page.Items {
			members = append(members, provider.ClanMember{
				Tag:       provider.NormalizeTag(m.Tag),
				Name:      m.Name,
				Donations: m.Donations,
				Received:  m.DonationsReceived,
			})
		}
		if page.Paging.Cursors.After == "" {
			break
		}
		params = url.Values{"after": {page.Paging.Cursors.After}}
	}
	return members, nil
}
