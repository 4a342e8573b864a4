package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphrank/ratings/internal/cache"
	"github.com/graphrank/ratings/internal/graph"
	"github.com/graphrank/ratings/internal/metrics"
)

// ErrRemoteUnavailable is returned once a call has exhausted its retry
// budget.
var ErrRemoteUnavailable = fmt.Errorf("remote: upstream unavailable after retries")

const (
	maxAttempts     = 10
	politenessSleep = 700 * time.Millisecond

	eventSetsPerPage   = 11
	tournamentsPerPage = 225
)

// retrySleep is the fixed delay between retry attempts. It is a var
// rather than a const solely so tests can shrink it; production code
// never reassigns it.
var retrySleep = 2 * time.Second

// startGGSource implements Source against a GraphQL-like tournament API
// over a single HTTP endpoint, bearer-authenticated.
type startGGSource struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	cache      *cache.Cache
}

// NewStartGGSource builds a Source. cache may be nil, in which case
// lookups simply always miss.
func NewStartGGSource(endpoint, authToken string, httpClient *http.Client, c *cache.Cache) Source {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &startGGSource{endpoint: endpoint, authToken: authToken, httpClient: httpClient, cache: c}
}

type gqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables"`
}

type gqlResponse[T any] struct {
	Data *T `json:"data"`
}

// do executes one GraphQL POST, retrying up to maxAttempts times with a
// fixed retrySleep between attempts (the spec pins these constants
// exactly rather than the teacher's exponential-backoff client).
func (s *startGGSource) do(ctx context.Context, operation, query string, vars any, out any) error {
	start := time.Now()
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RemoteRetries.WithLabelValues(operation).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retrySleep):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.authToken)

		resp, doErr := s.httpClient.Do(req)
		if doErr != nil {
			lastErr = doErr
			log.Warn().Err(doErr).Int("attempt", attempt).Msg("remote request failed")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("remote returned status %d", resp.StatusCode)
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("remote request retryable error")
			continue
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}

		metrics.RecordRemoteCall(operation, "success", time.Since(start).Seconds())
		return nil
	}

	log.Error().Err(lastErr).Int("attempts", maxAttempts).Msg("remote call exhausted retries")
	metrics.RecordRemoteCall(operation, "failure", time.Since(start).Seconds())
	metrics.RecordError("remote", "unavailable")
	return ErrRemoteUnavailable
}

const searchGamesQuery = `query($name: String){videogames(query:{filter:{name:$name},page:1,perPage:10}){nodes{id name}}}`

type searchGamesData struct {
	Videogames *struct {
		Nodes []struct {
			ID   *string `json:"id"`
			Name *string `json:"name"`
		} `json:"nodes"`
	} `json:"videogames"`
}

func (s *startGGSource) SearchGames(ctx context.Context, name string) ([]Game, error) {
	if s.cache != nil {
		var cached []Game
		if s.cache.GetSearchGames(ctx, name, &cached) {
			metrics.RecordCacheHit()
			return cached, nil
		}
		metrics.RecordCacheMiss()
	}

	var resp gqlResponse[searchGamesData]
	if err := s.do(ctx, "search_games", searchGamesQuery, map[string]string{"name": name}, &resp); err != nil {
		return nil, err
	}

	var games []Game
	if resp.Data != nil && resp.Data.Videogames != nil {
		for _, n := range resp.Data.Videogames.Nodes {
			if n.ID == nil || n.Name == nil {
				continue
			}
			id, err := strconv.ParseUint(*n.ID, 10, 64)
			if err != nil {
				continue
			}
			games = append(games, Game{ID: id, Name: *n.Name})
		}
	}

	if s.cache != nil {
		s.cache.SetSearchGames(ctx, name, games)
	}
	return games, nil
}

const tournamentEventsQuery = `query($after:Timestamp,$before:Timestamp,$game:ID,$country:String,$state:String,$page:Int){tournaments(query:{page:$page,perPage:225,sortBy:"startAt asc",filter:{past:true,afterDate:$after,beforeDate:$before,videogameIds:[$game],countryCode:$country,addrState:$state}}){pageInfo{totalPages}nodes{id startAt events(limit:99999,filter:{videogameId:[$game]}){id slug startAt}}}}`

type tournamentEventsData struct {
	Tournaments *struct {
		PageInfo *struct {
			TotalPages *int `json:"totalPages"`
		} `json:"pageInfo"`
		Nodes []struct {
			ID      *string `json:"id"`
			StartAt *int64  `json:"startAt"`
			Events  []struct {
				ID      *string `json:"id"`
				Slug    *string `json:"slug"`
				StartAt *int64  `json:"startAt"`
			} `json:"events"`
		} `json:"nodes"`
	} `json:"tournaments"`
}

// ListTournaments paginates internally, deduplicating on tournament id
// and returning the union ordered ascending by start time. When a page
// boundary falls inside a run of tournaments sharing the same start
// time, `after` advances to start+1s to guarantee forward progress
// rather than re-fetching the same page forever.
func (s *startGGSource) ListTournaments(ctx context.Context, gameID uint64, country, state *string, after, before time.Time) ([]Tournament, error) {
	seen := map[uint64]bool{}
	var out []Tournament

	cursor := after
	for {
		var resp gqlResponse[tournamentEventsData]
		vars := map[string]any{
			"after":   cursor.Unix(),
			"before":  before.Unix(),
			"game":    strconv.FormatUint(gameID, 10),
			"country": country,
			"state":   state,
			"page":    1,
		}
		if err := s.do(ctx, "list_tournaments", tournamentEventsQuery, vars, &resp); err != nil {
			return nil, err
		}
		if resp.Data == nil || resp.Data.Tournaments == nil {
			break
		}

		var lastStart time.Time
		progressed := false
		for _, n := range resp.Data.Tournaments.Nodes {
			if n.ID == nil || n.StartAt == nil {
				continue
			}
			id, err := strconv.ParseUint(*n.ID, 10, 64)
			if err != nil {
				continue
			}
			start := time.Unix(*n.StartAt, 0)
			if !seen[id] {
				seen[id] = true
				t := Tournament{ID: id, StartsAt: start}
				for _, e := range n.Events {
					if e.ID == nil || e.Slug == nil || e.StartAt == nil {
						continue
					}
					eid, err := strconv.ParseUint(*e.ID, 10, 64)
					if err != nil {
						continue
					}
					t.Events = append(t.Events, Event{ID: eid, Slug: *e.Slug, StartsAt: time.Unix(*e.StartAt, 0)})
				}
				out = append(out, t)
				progressed = true
			}
			lastStart = start
		}

		totalPages := 0
		if resp.Data.Tournaments.PageInfo != nil && resp.Data.Tournaments.PageInfo.TotalPages != nil {
			totalPages = *resp.Data.Tournaments.PageInfo.TotalPages
		}
		if totalPages <= 1 || len(resp.Data.Tournaments.Nodes) == 0 {
			break
		}
		if progressed {
			cursor = lastStart
		} else {
			// Every tournament on this page was already seen: the page
			// boundary fell inside a run of identical start times.
			// Advance the cursor past it to guarantee forward progress.
			cursor = lastStart.Add(time.Second)
		}

		time.Sleep(politenessSleep)
	}

	sortTournamentsByStart(out)
	return out, nil
}

func sortTournamentsByStart(ts []Tournament) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].StartsAt.Before(ts[j-1].StartsAt); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

const eventSetsQuery = `query($event:ID,$page:Int){event(id:$event){sets(page:$page,perPage:11){pageInfo{totalPages}nodes{id completedAt winnerId slots(includeByes:true){entrant{id participants{player{id gamerTag prefix}}}}}}}}`

type eventSetsData struct {
	Event *struct {
		Sets *struct {
			PageInfo *struct {
				TotalPages *int `json:"totalPages"`
			} `json:"pageInfo"`
			Nodes []struct {
				ID          *string `json:"id"`
				CompletedAt *int64  `json:"completedAt"`
				WinnerID    *int64  `json:"winnerId"`
				Slots       []struct {
					Entrant *struct {
						ID           *int64 `json:"id"`
						Participants []struct {
							Player *struct {
								ID       *string `json:"id"`
								GamerTag *string `json:"gamerTag"`
								Prefix   *string `json:"prefix"`
							} `json:"player"`
						} `json:"participants"`
					} `json:"entrant"`
				} `json:"slots"`
			} `json:"nodes"`
		} `json:"sets"`
	} `json:"event"`
}

func (s *startGGSource) ListEventSets(ctx context.Context, eventID uint64) ([]Set, error) {
	var all []Set
	page := 1
	for {
		var resp gqlResponse[eventSetsData]
		vars := map[string]any{"event": strconv.FormatUint(eventID, 10), "page": page}
		if err := s.do(ctx, "list_event_sets", eventSetsQuery, vars, &resp); err != nil {
			return nil, err
		}
		if resp.Data == nil || resp.Data.Event == nil || resp.Data.Event.Sets == nil {
			break
		}

		for _, n := range resp.Data.Event.Sets.Nodes {
			if n.ID == nil {
				continue
			}
			set, ok := decodeSet(*n.ID, n.CompletedAt, n.WinnerID, n.Slots)
			if ok {
				all = append(all, set)
			}
		}

		totalPages := 1
		if resp.Data.Event.Sets.PageInfo != nil && resp.Data.Event.Sets.PageInfo.TotalPages != nil {
			totalPages = *resp.Data.Event.Sets.PageInfo.TotalPages
		}
		if page >= totalPages {
			break
		}
		page++
		time.Sleep(politenessSleep)
	}
	return all, nil
}

func decodeSet(id string, completedAt, winnerID *int64, slots []struct {
	Entrant *struct {
		ID           *int64 `json:"id"`
		Participants []struct {
			Player *struct {
				ID       *string `json:"id"`
				GamerTag *string `json:"gamerTag"`
				Prefix   *string `json:"prefix"`
			} `json:"player"`
		} `json:"participants"`
	} `json:"entrant"`
}) (Set, bool) {
	if winnerID == nil {
		return Set{}, false
	}

	winner := -1
	teams := make([][]Player, 0, len(slots))
	for i, slot := range slots {
		if slot.Entrant == nil {
			return Set{}, false
		}
		if slot.Entrant.ID != nil && *slot.Entrant.ID == *winnerID {
			winner = i
		}

		team := make([]Player, 0, len(slot.Entrant.Participants))
		for _, p := range slot.Entrant.Participants {
			if p.Player == nil || p.Player.ID == nil {
				return Set{}, false
			}
			team = append(team, Player{
				ID:      graph.PlayerID(*p.Player.ID),
				Name:    derefOr(p.Player.GamerTag, ""),
				Prefix:  p.Player.Prefix,
				Discrim: *p.Player.ID,
			})
		}
		teams = append(teams, team)
	}

	if winner < 0 {
		return Set{}, false
	}

	set := Set{ID: id, Teams: teams, Winner: winner}
	if completedAt != nil {
		t := time.Unix(*completedAt, 0)
		set.Time = &t
	}
	return set, true
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
