package ratings

import (
	"github.com/ratewise/trustcore/internal/core/domain"
)

// ratingToData flattens a rating into the serializable payload carried by a
// pending operation.
func ratingToData(r *domain.Rating) map[string]any {
	scores := make(map[string]any, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	return map[string]any{
		"user_id":     r.UserID,
		"business_id": r.BusinessID,
		"scores":      scores,
		"total":       r.Total,
		"comment":     r.Comment,
		"ip_address":  r.IPAddress,
	}
}

// ratingFromData rebuilds a rating from a replayed pending operation. The
// payload has been through JSON, so numbers arrive as float64 and nested
// maps as map[string]any.
func ratingFromData(id string, data map[string]any) (*domain.Rating, error) {
	if data == nil {
		return nil, domain.NewError(domain.KindUnknown, "rating.replay", nil).
			WithContext("cause", "missing payload")
	}

	r := &domain.Rating{ID: id}
	r.UserID, _ = data["user_id"].(string)
	r.BusinessID, _ = data["business_id"].(string)
	r.Comment, _ = data["comment"].(string)
	r.IPAddress, _ = data["ip_address"].(string)
	r.Total, _ = data["total"].(float64)

	if raw, ok := data["scores"].(map[string]any); ok {
		r.Scores = make(map[string]float64, len(raw))
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				r.Scores[k] = f
			}
		}
	}

	if r.UserID == "" || r.BusinessID == "" {
		return nil, domain.NewError(domain.KindUnknown, "rating.replay", nil).
			WithContext("cause", "incomplete payload")
	}
	return r, nil
}
