package anilist

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
)

const perPage = 20

type AnimeRepository struct {
	client *Client
}

func NewAnimeRepository(client *Client) domain.AnimeRepository {
	return &AnimeRepository{
		client: client,
	}
}

type titleResult struct {
	Romaji  string
	English string
	Native  string
}

func (t titleResult) toDomain() domain.AnimeTitle {
	return domain.AnimeTitle{Romaji: t.Romaji, English: t.English, Native: t.Native}
}

type dateResult struct {
	Year  *int
	Month *int
	Day   *int
}

func (d dateResult) toDomain() domain.FuzzyDate {
	return domain.FuzzyDate{Year: deref(d.Year), Month: deref(d.Month), Day: deref(d.Day)}
}

type summaryResult struct {
	ID         int
	Title      titleResult
	CoverImage struct {
		Large  string
		Medium string
	}
	AverageScore *int
	Format       string
	Episodes     *int
	Status       string
}

func (m summaryResult) toDomain() domain.AnimeSummary {
	cover := m.CoverImage.Large
	if cover == "" {
		cover = m.CoverImage.Medium
	}
	return domain.AnimeSummary{
		ID:           m.ID,
		Title:        m.Title.toDomain(),
		CoverImage:   cover,
		AverageScore: deref(m.AverageScore),
		Format:       m.Format,
		Episodes:     deref(m.Episodes),
		Status:       m.Status,
	}
}

type pageResult struct {
	Page struct {
		PageInfo struct {
			Total       int
			CurrentPage int
			LastPage    int
			HasNextPage bool
		}
		Media []summaryResult
	}
}

func (p pageResult) toDomain() *domain.AnimePage {
	page := &domain.AnimePage{
		PageInfo: domain.PageInfo{
			Total:       p.Page.PageInfo.Total,
			CurrentPage: p.Page.PageInfo.CurrentPage,
			LastPage:    p.Page.PageInfo.LastPage,
			HasNextPage: p.Page.PageInfo.HasNextPage,
		},
		Media: make([]domain.AnimeSummary, 0, len(p.Page.Media)),
	}
	for _, m := range p.Page.Media {
		page.Media = append(page.Media, m.toDomain())
	}
	return page
}

func (r *AnimeRepository) GetAnimeByID(ctx context.Context, id int) (*domain.Anime, error) {
	query := `
        query ($id: Int) {
            Media (id: $id, type: ANIME) {
                id
                title {
                    romaji
                    english
                    native
                }
                status
                description(asHtml: false)
                startDate { year month day }
                endDate { year month day }
                seasonYear
                episodes
                duration
                trailer { id site thumbnail }
                coverImage { large }
                bannerImage
                genres
                averageScore
                studios { nodes { name } }
            }
        }
    `

	var response struct {
		Media *struct {
			ID          int
			Title       titleResult
			Status      string
			Description string
			StartDate   dateResult
			EndDate     dateResult
			SeasonYear  *int
			Episodes    *int
			Duration    *int
			Trailer     *struct {
				ID        string
				Site      string
				Thumbnail string
			}
			CoverImage struct {
				Large string
			}
			BannerImage  string
			Genres       []string
			AverageScore *int
			Studios      struct {
				Nodes []struct {
					Name string
				}
			}
		}
	}

	err := r.client.Query(ctx, query, map[string]interface{}{"id": id}, &response)
	if isNotFound(err) {
		return nil, fmt.Errorf("anime %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch anime %d: %w", id, err)
	}
	if response.Media == nil {
		return nil, fmt.Errorf("anime %d: %w", id, domain.ErrNotFound)
	}

	m := response.Media
	anime := &domain.Anime{
		ID:           m.ID,
		Title:        m.Title.toDomain(),
		Status:       m.Status,
		Description:  m.Description,
		StartDate:    m.StartDate.toDomain(),
		EndDate:      m.EndDate.toDomain(),
		SeasonYear:   deref(m.SeasonYear),
		Episodes:     deref(m.Episodes),
		Duration:     deref(m.Duration),
		CoverImage:   m.CoverImage.Large,
		BannerImage:  m.BannerImage,
		Genres:       m.Genres,
		AverageScore: deref(m.AverageScore),
	}
	if m.Trailer != nil {
		anime.Trailer = &domain.Trailer{ID: m.Trailer.ID, Site: m.Trailer.Site, Thumbnail: m.Trailer.Thumbnail}
	}
	for _, s := range m.Studios.Nodes {
		anime.Studios = append(anime.Studios, s.Name)
	}

	log.Debug("Fetched anime", "id", id, "title", anime.Title.Preferred())
	return anime, nil
}

const pageFields = `
                pageInfo { total currentPage lastPage hasNextPage }
                media (%s, type: ANIME, sort: POPULARITY_DESC) {
                    id
                    title { romaji english native }
                    coverImage { large medium }
                    averageScore
                    format
                    episodes
                    status
                }`

func (r *AnimeRepository) SearchAnime(ctx context.Context, search string, page int) (*domain.AnimePage, error) {
	query := `
        query ($search: String, $page: Int, $perPage: Int) {
            Page (page: $page, perPage: $perPage) {` + fmt.Sprintf(pageFields, "search: $search") + `
            }
        }
    `

	var response pageResult
	variables := map[string]interface{}{"search": search, "page": max(page, 1), "perPage": perPage}
	if err := r.client.Query(ctx, query, variables, &response); err != nil {
		return nil, fmt.Errorf("failed to search anime: %w", err)
	}
	return response.toDomain(), nil
}

func (r *AnimeRepository) AnimeByGenre(ctx context.Context, genre string, page int) (*domain.AnimePage, error) {
	query := `
        query ($genre: String, $page: Int, $perPage: Int) {
            Page (page: $page, perPage: $perPage) {` + fmt.Sprintf(pageFields, "genre: $genre") + `
            }
        }
    `

	var response pageResult
	variables := map[string]interface{}{"genre": genre, "page": max(page, 1), "perPage": perPage}
	if err := r.client.Query(ctx, query, variables, &response); err != nil {
		return nil, fmt.Errorf("failed to list genre %s: %w", genre, err)
	}
	return response.toDomain(), nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
