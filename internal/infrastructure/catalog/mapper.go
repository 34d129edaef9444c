package catalog

import "github.com/shelfmatch/backend/internal/domain"

// searchResponse is the wire format of the catalog search endpoint
type searchResponse struct {
	Products []product `json:"products"`
	Total    int       `json:"totalHits"`
}

// product is one raw catalog entry on the wire
type product struct {
	ID           string   `json:"id"`
	Brand        string   `json:"brand"`
	Manufacturer string   `json:"manufacturer"`
	Title        string   `json:"title"`
	Size         string   `json:"size"`
	Retailers    []string `json:"retailers"`
	ImageURL     string   `json:"imageUrl"`
}

// mapProducts converts wire products to domain candidates
func mapProducts(products []product) []domain.Candidate {
	if len(products) == 0 {
		return nil
	}

	candidates := make([]domain.Candidate, 0, len(products))
	for _, p := range products {
		candidates = append(candidates, domain.Candidate{
			ID:           p.ID,
			Brand:        p.Brand,
			Manufacturer: p.Manufacturer,
			Title:        p.Title,
			Size:         p.Size,
			Retailers:    p.Retailers,
			Image:        p.ImageURL,
		})
	}
	return candidates
}
