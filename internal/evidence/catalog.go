package evidence

import "regexp"

// Report sections the catalog fields belong to.
const (
	SectionGeneral      = "General information"
	SectionKeyDates     = "Key dates"
	SectionGuarantees   = "Guarantees"
	SectionBudget       = "Budget and payment"
	SectionRequirements = "Requirements"
	SectionPenalties    = "Penalties"
)

// Field is one entry of the tender vocabulary. Label is the name the report
// uses; Aliases are the other ways a report or a pliego may spell it.
type Field struct {
	Key      string
	Label    string
	Section  string
	Aliases  []string
	Patterns []*regexp.Regexp
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Catalog is the static field table, in report order.
var Catalog = []Field{
	{
		Key: "organismo", Label: "Contracting authority", Section: SectionGeneral,
		Aliases:  []string{"organismo contratante", "entidad contratante", "comitente", "organismo licitante"},
		Patterns: patterns(`organismo\s+(?:contratante|licitante)`, `entidad\s+contratante`, `\bcomitente\b`),
	},
	{
		Key: "objeto", Label: "Purpose of the contract", Section: SectionGeneral,
		Aliases: []string{"objeto", "objeto de la contratacion", "objeto del llamado", "subject matter"},
		Patterns: patterns(
			`objeto\s+(?:de\s+la\s+)?(?:licitaci[oó]n|contrataci[oó]n)`,
			`objeto\s+del\s+(?:llamado|contrato|presente)`,
		),
	},
	{
		Key: "expediente", Label: "File number", Section: SectionGeneral,
		Aliases:  []string{"expediente", "numero de expediente", "file no"},
		Patterns: patterns(`expediente\s*(?:n[°º.o]*|nro\.?)?\s*[:\-]?\s*[\w\-/.]+`),
	},
	{
		Key: "tipo_procedimiento", Label: "Procedure type", Section: SectionGeneral,
		Aliases: []string{"procedimiento", "tipo de procedimiento", "modalidad", "procedure"},
		Patterns: patterns(
			`licitaci[oó]n\s+(?:p[uú]blica|privada)`,
			`contrataci[oó]n\s+directa`,
			`concurso\s+de\s+precios`,
		),
	},
	{
		Key: "fecha_apertura", Label: "Bid opening date", Section: SectionKeyDates,
		Aliases: []string{"apertura", "fecha de apertura", "acto de apertura", "opening"},
		Patterns: patterns(
			`(?:fecha|acto)\s+de\s+apertura`,
			`apertura\s+de\s+(?:las\s+)?(?:ofertas|sobres|propuestas)`,
		),
	},
	{
		Key: "consultas", Label: "Deadline for queries", Section: SectionKeyDates,
		Aliases:  []string{"consultas", "plazo para consultas", "queries", "clarifications"},
		Patterns: patterns(`plazo\s+(?:para|de)\s+(?:las\s+)?consultas`, `consultas\s+(?:hasta|podr[aá]n)`),
	},
	{
		Key: "visita_obra", Label: "Site visit", Section: SectionKeyDates,
		Aliases:  []string{"visita de obra", "visita al lugar", "site visit"},
		Patterns: patterns(`visita\s+(?:de|a\s+la|al)\s+(?:obra|lugar|terreno)`),
	},
	{
		Key: "plazo_ejecucion", Label: "Execution period", Section: SectionKeyDates,
		Aliases:  []string{"plazo de ejecucion", "plazo de obra", "plazo de entrega"},
		Patterns: patterns(`plazo\s+de\s+(?:ejecuci[oó]n|obra|entrega)`),
	},
	{
		Key: "mantenimiento_oferta", Label: "Bid validity period", Section: SectionKeyDates,
		Aliases:  []string{"mantenimiento de oferta", "validez de la oferta", "bid validity"},
		Patterns: patterns(`mantenimiento\s+de\s+(?:la\s+)?oferta`, `validez\s+de\s+(?:la\s+)?oferta`),
	},
	{
		Key: "garantia_oferta", Label: "Bid guarantee", Section: SectionGuarantees,
		Aliases:  []string{"garantia de oferta", "garantia de mantenimiento de oferta", "bid bond"},
		Patterns: patterns(`garant[ií]a\s+de\s+(?:la\s+)?oferta`, `garant[ií]a\s+de\s+mantenimiento`),
	},
	{
		Key: "garantia_cumplimiento", Label: "Performance guarantee", Section: SectionGuarantees,
		Aliases:  []string{"garantia de cumplimiento", "garantia de fiel cumplimiento", "performance bond"},
		Patterns: patterns(`garant[ií]a\s+de\s+(?:fiel\s+)?cumplimiento`, `garant[ií]a\s+de\s+(?:ejecuci[oó]n|adjudicaci[oó]n)`),
	},
	{
		Key: "garantia_anticipo", Label: "Advance payment guarantee", Section: SectionGuarantees,
		Aliases:  []string{"garantia de anticipo", "anticipo financiero", "advance payment"},
		Patterns: patterns(`garant[ií]a\s+de\s+(?:anticipo|acopio)`, `anticipo\s+financiero`),
	},
	{
		Key: "fondo_reparo", Label: "Retention fund", Section: SectionGuarantees,
		Aliases:  []string{"fondo de reparo", "retencion", "retention"},
		Patterns: patterns(`fondo\s+de\s+reparos?`),
	},
	{
		Key: "presupuesto", Label: "Official budget", Section: SectionBudget,
		Aliases:  []string{"presupuesto oficial", "monto estimado", "budget"},
		Patterns: patterns(`presupuesto\s+oficial`, `monto\s+(?:estimado|oficial)`),
	},
	{
		Key: "forma_pago", Label: "Payment terms", Section: SectionBudget,
		Aliases:  []string{"forma de pago", "condiciones de pago", "payment"},
		Patterns: patterns(`forma\s+de\s+pago`, `condiciones\s+de\s+pago`, `certificaci[oó]n\s+mensual`),
	},
	{
		Key: "moneda", Label: "Currency", Section: SectionBudget,
		Aliases:  []string{"moneda", "moneda de cotizacion"},
		Patterns: patterns(`moneda\s+de\s+(?:cotizaci[oó]n|pago)`, `(?:pesos|d[oó]lares)\s+(?:argentinos|estadounidenses)`),
	},
	{
		Key: "redeterminacion", Label: "Price redetermination", Section: SectionBudget,
		Aliases:  []string{"redeterminacion de precios", "variacion de costos", "price adjustment"},
		Patterns: patterns(`redeterminaci[oó]n\s+de\s+precios`, `variaci[oó]n\s+de\s+costos`),
	},
	{
		Key: "capacidad", Label: "Contracting capacity", Section: SectionRequirements,
		Aliases:  []string{"capacidad de contratacion", "certificado de capacidad"},
		Patterns: patterns(`capacidad\s+de\s+(?:contrataci[oó]n|ejecuci[oó]n)`, `certificado\s+de\s+capacidad`),
	},
	{
		Key: "registro", Label: "Supplier registry", Section: SectionRequirements,
		Aliases: []string{"registro de proveedores", "registro de constructores", "inscripcion"},
		Patterns: patterns(
			`registro\s+(?:nacional\s+)?de\s+(?:proveedores|constructores)`,
			`inscripci[oó]n\s+en\s+el\s+registro`,
		),
	},
	{
		Key: "multas", Label: "Penalties", Section: SectionPenalties,
		Aliases:  []string{"multas", "penalidades", "sanciones", "penalties", "fines"},
		Patterns: patterns(`\bmultas?\b`, `\bpenalidad(?:es)?\b`, `\bsanci[oó]n(?:es)?\b`),
	},
}

// InSections returns the catalog fields belonging to any of the sections.
func InSections(sections ...string) []Field {
	var out []Field
	for _, f := range Catalog {
		for _, s := range sections {
			if f.Section == s {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
