package service

import (
	"sort"

	"github.com/opsdesk-io/servicedesk/internal/config"
	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// TeamDirectory routes ticket categories to resolver teams.
type TeamDirectory struct {
	routes   map[domain.Category]domain.Team
	fallback domain.Team
}

// NewTeamDirectory builds the directory from configuration.
func NewTeamDirectory(cfg config.TeamsConfig) *TeamDirectory {
	routes := make(map[domain.Category]domain.Team, len(cfg.Routes))
	for category, team := range cfg.Routes {
		routes[category] = team
	}
	return &TeamDirectory{routes: routes, fallback: cfg.Fallback}
}

// Route returns the team responsible for the given category. Categories
// without an explicit route go to the fallback team.
func (d *TeamDirectory) Route(category domain.Category) domain.Team {
	if team, ok := d.routes[category]; ok {
		return team
	}
	return d.fallback
}

// Teams returns every distinct team, fallback included, sorted by name.
func (d *TeamDirectory) Teams() []domain.Team {
	seen := make(map[string]bool, len(d.routes)+1)
	teams := make([]domain.Team, 0, len(d.routes)+1)
	for _, team := range d.routes {
		if !seen[team.Email] {
			seen[team.Email] = true
			teams = append(teams, team)
		}
	}
	if !seen[d.fallback.Email] {
		teams = append(teams, d.fallback)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams
}
