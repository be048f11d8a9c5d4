package widget

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RefreshLabel is the text of the control that forces a new position and fetch.
const RefreshLabel = "Rafraîchir ma position"

var printer = message.NewPrinter(language.French)

// Render writes r as a French text panel. Decimals use a French comma;
// whole readings such as pressure are printed without digit grouping.
func Render(w io.Writer, r Result) error {
	switch r.State {
	case StateLoading:
		_, err := fmt.Fprintln(w, "Chargement...")
		return err
	case StateError:
		_, err := fmt.Fprintf(w, "Erreur : %s\n", r.Message)
		return err
	case StateData:
		return renderData(w, r)
	default:
		return fmt.Errorf("unknown widget state %d", r.State)
	}
}

func renderData(w io.Writer, r Result) error {
	s := r.Snapshot
	lines := []string{
		fmt.Sprintf("Météo à %s", s.Location),
	}
	if icon := s.IconURL(); icon != "" {
		lines = append(lines, fmt.Sprintf("  [%s] %s", s.Description, icon))
	}
	lines = append(lines,
		printer.Sprintf("  Température : %v°C", s.Temperature),
		fmt.Sprintf("  Météo : %s", s.Description),
		fmt.Sprintf("  Humidité : %d%%", s.Humidity),
		fmt.Sprintf("  Pression : %d hPa", s.Pressure),
		printer.Sprintf("  Vitesse du vent : %v m/s", s.WindSpeed),
		fmt.Sprintf("  Source: %s", r.Origin),
		fmt.Sprintf("[r] %s", RefreshLabel),
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
