package scoring

// Category identifies one of the five fixed assessment categories. The
// declaration order of Categories is the tie-break order for TopCategory.
type Category string

const (
	CategoryManipulacion Category = "manipulacion"
	CategoryEmpatia      Category = "empatia"
	CategoryControl      Category = "control"
	CategoryGaslighting  Category = "gaslighting"
	CategoryGrandiosidad Category = "grandiosidad"
)

// CategoryInfo is the display metadata for a category.
type CategoryInfo struct {
	ID    Category
	Label string
	Emoji string
}

// Categories is the fixed category order. Iterate this slice, never the map,
// when order matters.
var Categories = []CategoryInfo{
	{ID: CategoryManipulacion, Label: "Manipulación", Emoji: "🎭"},
	{ID: CategoryEmpatia, Label: "Falta de Empatía", Emoji: "💔"},
	{ID: CategoryControl, Label: "Necesidad de Control", Emoji: "⛓️"},
	{ID: CategoryGaslighting, Label: "Gaslighting", Emoji: "🌫️"},
	{ID: CategoryGrandiosidad, Label: "Superioridad", Emoji: "👑"},
}

// Question is one item of the assessment. Answers are valued 0–4.
type Question struct {
	ID       int
	Category Category
	Text     string
}

// Questions is the 10-item bank, two per category.
var Questions = []Question{
	{ID: 1, Category: CategoryManipulacion, Text: "¿Tu pareja utiliza tus emociones o vulnerabilidades para conseguir lo que quiere?"},
	{ID: 2, Category: CategoryManipulacion, Text: "¿Te hace sentir culpable cuando intentas establecer límites saludables?"},
	{ID: 3, Category: CategoryEmpatia, Text: "¿Ignora o minimiza tus sentimientos cuando estás pasando por un momento difícil?"},
	{ID: 4, Category: CategoryEmpatia, Text: "¿Cuando compartes algo importante, cambia el tema hacia sí mismo/a?"},
	{ID: 5, Category: CategoryControl, Text: "¿Intenta controlar con quién te relacionas, a dónde vas o qué haces?"},
	{ID: 6, Category: CategoryControl, Text: "¿Sientes que necesitas pedir permiso para tomar tus propias decisiones?"},
	{ID: 7, Category: CategoryGaslighting, Text: "¿Niega cosas que dijo o hizo, haciéndote dudar de tu propia memoria?"},
	{ID: 8, Category: CategoryGaslighting, Text: "¿Alguna vez te has sentido como si estuvieras \"volviéndote loca\" en la relación?"},
	{ID: 9, Category: CategoryGrandiosidad, Text: "¿Actúa como si fuera superior a los demás y mereciera un trato especial?"},
	{ID: 10, Category: CategoryGrandiosidad, Text: "¿Desprecia tus logros o necesita ser siempre el centro de atención?"},
}

func questionByID(id int) (Question, bool) {
	for _, q := range Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
