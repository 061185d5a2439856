package td

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Site names a hosted region of the data platform. The set is closed;
// anything else must come in through an explicit endpoint override.
type Site string

const (
	SiteAWS      Site = "aws"
	SiteAWSTokyo Site = "aws-tokyo"
	SiteEU01     Site = "eu01"
	SiteAP02     Site = "ap02"
	SiteAP03     Site = "ap03"
)

var siteEndpoints = map[Site]string{
	SiteAWS:      "https://api.treasuredata.com",
	SiteAWSTokyo: "https://api.treasuredata.co.jp",
	SiteEU01:     "https://api.eu01.treasuredata.com",
	SiteAP02:     "https://api.ap02.treasuredata.com",
	SiteAP03:     "https://api.ap03.treasuredata.com",
}

// Sites lists the valid site names for CLI help text.
func Sites() []string {
	names := make([]string, 0, len(siteEndpoints))
	for s := range siteEndpoints {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return names
}

// ResolveEndpoint turns a site name, or an explicit endpoint override,
// into the API base URL. The override wins when both are given. Unknown
// sites are rejected here, at configuration time, never mid-transfer.
func ResolveEndpoint(endpoint string, site string) (string, error) {
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/"), nil
	}
	url, ok := siteEndpoints[Site(site)]
	if !ok {
		return "", errors.Errorf("unknown site %q, expected one of: %s", site, strings.Join(Sites(), ", "))
	}
	return url, nil
}
