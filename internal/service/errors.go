package service

import (
	"github.com/kjstillabower/location-weather/internal/client"
)

// FetchError reports a failed weather fetch. Error returns a French message
// for display; Unwrap exposes the underlying client error.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	switch client.CategorizeError(e.Err) {
	case client.ErrorCategoryTimeout:
		return "La requête météo a expiré."
	case client.ErrorCategoryNetwork:
		return "Impossible de joindre le service météo."
	case client.ErrorCategoryInvalidAPIKey:
		return "La clé d'API météo est invalide."
	case client.ErrorCategoryLocationNotFound:
		return "Aucune donnée météo pour cette position."
	case client.ErrorCategoryRateLimited:
		return "Trop de requêtes vers le service météo, réessayez plus tard."
	case client.ErrorCategoryCircuitOpen:
		return "Le service météo est temporairement indisponible."
	case client.ErrorCategoryParsing:
		return "La réponse du service météo est illisible."
	default:
		return "Impossible de récupérer la météo."
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
