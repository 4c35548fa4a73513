package invoicestatus

// Presentation category of a status badge
// Display only, never consult it for authorization
type Category string

const (
	CategoryNeutral Category = "neutral"
	CategoryInfo    Category = "info"
	CategoryWarning Category = "warning"
	CategorySuccess Category = "success"
	CategoryDanger  Category = "danger"
)

// Label is the Spanish name shown to office staff and clients
func (s Status) Label() string {
	switch s {
	case Draft:
		return "Borrador"
	case Issued:
		return "Emitida"
	case Sent:
		return "Enviada"
	case Notified:
		return "Notificada"
	case Accepted:
		return "Aceptada"
	case Rejected:
		return "Rechazada"
	case Cancelled:
		return "Anulada"
	case Unknown:
		return "Desconocido"
	default:
		return "Desconocido"
	}
}

func (s Status) Category() Category {
	switch s {
	case Draft, Unknown:
		return CategoryNeutral
	case Issued, Sent:
		return CategoryInfo
	case Notified:
		return CategoryWarning
	case Accepted:
		return CategorySuccess
	case Rejected, Cancelled:
		return CategoryDanger
	default:
		return CategoryNeutral
	}
}
