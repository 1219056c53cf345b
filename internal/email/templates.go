package email

import (
	"fmt"
	"strings"

	"github.com/historiasdelamente/detectar-backend/internal/scoring"
)

// Course offer referenced by the sequence emails.
const (
	courseName          = "Apego Detox"
	coursePriceUSD      = 25
	courseOriginalPrice = 47
	courseURL           = "https://historiasdelamente.com/apegodetox"
)

// Palette shared by all templates.
const (
	colorBg         = "#0a0a0a"
	colorSurface    = "#1E1E1E"
	colorGold       = "#ffd900"
	colorWhite      = "#ffffff"
	colorMuted      = "#999999"
	colorMutedLight = "#666666"
)

// TemplateData is everything the templates need to personalize one email.
type TemplateData struct {
	Email          string
	Name           string
	TotalScore     int
	MaxScore       int
	Level          scoring.RiskLevel
	CategoryScores []scoring.CategoryScore
	TopCategory    scoring.CategoryScore
}

// categoryConnection links the reader's highest category to the course pitch.
func categoryConnection(category scoring.Category) string {
	switch category {
	case scoring.CategoryManipulacion:
		return "Tu cerebro aprendio a normalizar la manipulacion. En Apego Detox entenderas por que defiendes a quien te destruye — y como dejar de hacerlo."
	case scoring.CategoryEmpatia:
		return "La falta de empatia que detectaste no es algo que tu puedas arreglar. En Apego Detox descubriras por que sigues intentandolo y como soltar esa carga."
	case scoring.CategoryControl:
		return "El control que sientes no es amor — es una trampa cognitiva. En Apego Detox aprenderas a ver la jaula y a encontrar la puerta."
	case scoring.CategoryGaslighting:
		return "Si dudas de tu propia memoria, no estas loca. Tu cerebro te esta mintiendo porque el le enseno a hacerlo. En Apego Detox recuperas tu realidad."
	case scoring.CategoryGrandiosidad:
		return "Sientes que nada de lo que haces es suficiente para el? No es porque no lo sea. En Apego Detox entenderas por que tu autoestima quedo atrapada en su aprobacion."
	}
	return ""
}

// wrapTemplate puts shared branding around the body content. The preheader is
// the hidden preview line mail clients show next to the subject.
func wrapTemplate(content, preheader string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Historias de la Mente</title>
</head>
<body style="background-color:%[1]s;color:%[2]s;font-family:'Segoe UI',Arial,sans-serif;margin:0;padding:0;">
  <span style="display:none;font-size:1px;color:%[1]s;max-height:0;overflow:hidden;">%[3]s</span>
  <div style="max-width:480px;margin:0 auto;padding:20px;">
    <div style="text-align:center;padding:30px 0 20px;">
      <h1 style="margin:0;font-size:22px;font-weight:800;">
        <span style="color:%[4]s;">N</span>arcisista
      </h1>
      <p style="color:%[5]s;margin-top:4px;font-size:13px;">Historias de la Mente</p>
    </div>
    %[6]s
    <div style="text-align:center;padding:30px 0;color:%[5]s;font-size:11px;">
      <p>Este test es una herramienta de orientacion y no constituye un diagnostico profesional.</p>
      <p style="margin-top:8px;">&copy; 2026 Historias de la Mente</p>
    </div>
  </div>
</body>
</html>`, colorBg, colorWhite, preheader, colorGold, colorMutedLight, content)
}

func goldButton(text, url string) string {
	return fmt.Sprintf(`<div style="text-align:center;margin:28px 0;">
  <a href="%s" style="display:inline-block;background-color:%s;color:%s;font-weight:800;font-size:16px;padding:16px 40px;border-radius:50px;text-decoration:none;">%s</a>
</div>`, url, colorGold, colorBg, text)
}

func scoreHeader(d TemplateData) string {
	levelColor := scoring.LevelColor(d.Level)
	return fmt.Sprintf(`<div style="text-align:center;margin-bottom:24px;">
        <div style="font-size:48px;font-weight:800;color:%[1]s;">%[2]d/%[3]d</div>
        <div style="display:inline-block;padding:6px 20px;border-radius:20px;font-size:14px;font-weight:700;color:%[1]s;background:%[1]s20;margin-top:8px;">
          %[4]s
        </div>
      </div>`, levelColor, d.TotalScore, d.MaxScore, scoring.LevelLabel(d.Level))
}

// BuildSequenceEmail renders the step-specific campaign email. step must be
// 1, 2, or 3.
func BuildSequenceEmail(step int, d TemplateData) (Message, error) {
	var subject, html string
	switch step {
	case 1:
		subject, html = buildEmail1(d)
	case 2:
		subject, html = buildEmail2(d)
	case 3:
		subject, html = buildEmail3(d)
	default:
		return Message{}, fmt.Errorf("email: unknown sequence step %d", step)
	}
	return Message{To: d.Email, Subject: subject, HTML: html}, nil
}

// ─── EMAIL 1: "El Espejo" — validación ───────────────────────────────────────

func buildEmail1(d TemplateData) (subject, html string) {
	firstName := strings.TrimSpace(d.Name)
	greeting := "Tu"
	if firstName != "" {
		greeting = firstName + ", tu"
	}
	subject = fmt.Sprintf("%s resultado de %d/%d confirma lo que ya sabias", greeting, d.TotalScore, d.MaxScore)
	preheader := "Lo que sientes tiene nombre. Y no es tu culpa."

	opener := "Acabas"
	if firstName != "" {
		opener = firstName + ", acabas"
	}

	content := fmt.Sprintf(`
    <div style="background:%[1]s;border-radius:16px;padding:30px;margin-bottom:20px;">
      %[2]s

      <p style="color:%[3]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        %[4]s de hacer algo valiente. La mayoria de las mujeres en tu situacion nunca llegan a este punto — prefieren no saber.
      </p>

      <p style="color:%[3]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        Tu lo hiciste. Y tu resultado no es casualidad.
      </p>

      <div style="background:%[5]s;border-radius:12px;padding:20px;margin-bottom:20px;border-left:4px solid %[6]s;">
        <p style="color:%[6]s;font-weight:700;margin:0 0 8px;font-size:14px;">
          %[7]s Tu area mas alta: %[8]s (%[9]d%%)
        </p>
        <p style="color:%[10]s;font-size:14px;line-height:1.6;margin:0;">
          %[11]s
        </p>
      </div>

      <p style="color:%[3]s;font-size:15px;line-height:1.7;margin-bottom:8px;">
        Si te sientes confundida, agotada, o como si estuvieras perdiendo tu identidad...
      </p>

      <p style="color:%[3]s;font-size:17px;line-height:1.7;font-weight:700;margin-bottom:20px;">
        No estas loca. Lo que sientes tiene nombre. Y no es tu culpa.
      </p>

      <p style="color:%[10]s;font-size:14px;line-height:1.7;">
        Existe un programa disenado para mujeres exactamente en tu situacion. Se llama <strong style="color:%[6]s;">%[12]s</strong>. No es un curso de videos. Es un espacio donde entras devastada — y sales respondiendo la pregunta que mas duele: <em>quien soy yo antes de el?</em>
      </p>

      %[13]s

      <p style="color:%[14]s;font-size:13px;text-align:center;margin:0;">
        No tienes que actuar ahora. Pero no borres este email.<br>Puede que lo necesites manana.
      </p>
    </div>`,
		colorSurface, scoreHeader(d), colorWhite, opener, colorBg, colorGold,
		d.TopCategory.Emoji, d.TopCategory.Label, d.TopCategory.Percentage,
		colorMuted, categoryConnection(d.TopCategory.Category), courseName,
		goldButton("Quiero saber mas", courseURL), colorMutedLight)

	return subject, wrapTemplate(content, preheader)
}

// ─── EMAIL 2: "La Herida Abierta" — profundizar ──────────────────────────────

func buildEmail2(d TemplateData) (subject, html string) {
	firstName := strings.TrimSpace(d.Name)
	subject = "Anoche no dormiste bien, verdad?"
	if firstName != "" {
		subject = firstName + ", anoche no dormiste bien, verdad?"
	}
	preheader := "Tu cerebro te esta mintiendo. Es hora de pararlo."

	opener := "Han"
	if firstName != "" {
		opener = firstName + ", han"
	}

	content := fmt.Sprintf(`
    <div style="background:%[1]s;border-radius:16px;padding:30px;margin-bottom:20px;">
      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        %[3]s pasado 24 horas desde tu test.
      </p>

      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        Dejame adivinar: has estado repasando situaciones. Revisando mensajes viejos. Preguntandote si exageraste. Si tal vez fue tu culpa.
      </p>

      <p style="color:%[2]s;font-size:17px;line-height:1.7;font-weight:700;margin-bottom:20px;">
        No exageraste. Y no fue tu culpa.
      </p>

      <p style="color:%[4]s;font-size:14px;line-height:1.7;margin-bottom:24px;">
        Lo que te esta pasando tiene un nombre clinico: tu cerebro creo un vinculo traumatico. Es la misma razon por la que defiendes a quien te destruye. Y es la misma razon por la que, aunque sabes que te hace dano, no puedes dejar de pensar en el.
      </p>

      <hr style="border:none;border-top:1px solid #333;margin:24px 0;">

      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:16px;">
        <strong style="color:%[5]s;">%[6]s</strong> fue creado para este momento exacto. Para cuando ya sabes que algo esta mal pero no sabes como salir.
      </p>

      <div style="background:%[7]s;border-radius:12px;padding:20px;margin-bottom:24px;border-left:4px solid %[5]s;">
        <p style="color:%[4]s;font-size:14px;line-height:1.6;margin:0 0 8px;font-style:italic;">
          "Entre pensando que era yo la del problema. A las dos semanas entendi que mi cerebro me estaba mintiendo. Hoy, 3 meses despues, ya no reviso su WhatsApp."
        </p>
        <p style="color:%[8]s;font-size:12px;margin:0;">— Maria, 34 anos</p>
      </div>

      <div style="text-align:center;margin-bottom:16px;">
        <span style="color:%[8]s;font-size:14px;text-decoration:line-through;">$%[9]d USD</span>
        <span style="color:%[5]s;font-size:28px;font-weight:800;margin-left:12px;">$%[10]d USD</span>
      </div>
      <p style="color:%[8]s;font-size:12px;text-align:center;margin-bottom:4px;">
        Precio de lanzamiento. No lo repetiremos.
      </p>

      %[11]s

      <p style="color:%[8]s;font-size:12px;text-align:center;margin:0;">
        Pago unico. Acceso de por vida. Sin suscripciones.
      </p>
    </div>`,
		colorSurface, colorWhite, opener, colorMuted, colorGold, courseName,
		colorBg, colorMutedLight, courseOriginalPrice, coursePriceUSD,
		goldButton(fmt.Sprintf("Entrar a %s — $%d", courseName, coursePriceUSD), courseURL))

	return subject, wrapTemplate(content, preheader)
}

// ─── EMAIL 3: "Ahora o Nunca" — decisión ─────────────────────────────────────

func buildEmail3(d TemplateData) (subject, html string) {
	firstName := strings.TrimSpace(d.Name)
	subject = fmt.Sprintf("Ultimo dia: $%d por dejar de ser Rapunzel", coursePriceUSD)
	if firstName != "" {
		subject = fmt.Sprintf("%s, ultimo dia: $%d por dejar de ser Rapunzel", firstName, coursePriceUSD)
	}
	preheader := "Este precio desaparece hoy a las 11:59 PM."

	opener := "Este"
	if firstName != "" {
		opener = firstName + ", este"
	}

	content := fmt.Sprintf(`
    <div style="background:%[1]s;border-radius:16px;padding:30px;margin-bottom:20px;">
      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        %[3]s es mi ultimo email sobre esto.
      </p>

      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        Hay dos versiones de ti en este momento:
      </p>

      <p style="color:%[4]s;font-size:14px;line-height:1.7;margin-bottom:8px;">
        <strong style="color:%[2]s;">Version A:</strong> La que cierra este email, vuelve a su rutina, y manana se despierta con el mismo nudo en el estomago. Sintiendose culpable por algo que nunca fue su culpa.
      </p>

      <p style="color:%[4]s;font-size:14px;line-height:1.7;margin-bottom:24px;">
        <strong style="color:%[5]s;">Version B:</strong> La que hoy decide responder la pregunta mas importante de su vida: <em>quien soy yo antes de el?</em>
      </p>

      <hr style="border:none;border-top:1px solid #333;margin:24px 0;">

      <p style="color:%[2]s;font-size:15px;line-height:1.7;margin-bottom:20px;">
        No necesitas completar todo %[6]s para sentir alivio. En los primeros 15 minutos vas a entender por primera vez que le paso a tu cerebro.
      </p>

      <p style="color:%[2]s;font-size:17px;line-height:1.7;font-weight:700;margin-bottom:24px;">
        Y vas a entender, por fin, que nunca fue tu culpa.
      </p>

      <div style="text-align:center;margin-bottom:8px;">
        <span style="color:%[7]s;font-size:14px;text-decoration:line-through;">$%[8]d USD</span>
        <span style="color:%[5]s;font-size:28px;font-weight:800;margin-left:12px;">$%[9]d USD</span>
      </div>
      <p style="color:#ef4444;font-size:13px;text-align:center;font-weight:700;margin-bottom:4px;">
        Este precio desaparece hoy a las 11:59 PM
      </p>

      %[10]s

      <p style="color:%[4]s;font-size:14px;line-height:1.7;margin-bottom:0;">
        Independientemente de tu decision, quiero que sepas algo: tus resultados del test son reales. Lo que sientes es real. Y mereces algo mejor.
      </p>

      <p style="color:%[7]s;font-size:13px;line-height:1.7;margin-top:20px;">
        <strong>P.S.</strong> Si no puedes pagar el programa ahora, responde a este email. Tenemos opciones. Ninguna mujer se queda afuera por dinero.
      </p>
    </div>`,
		colorSurface, colorWhite, opener, colorMuted, colorGold, courseName,
		colorMutedLight, courseOriginalPrice, coursePriceUSD,
		goldButton(fmt.Sprintf("Si, quiero ser libre — $%d", coursePriceUSD), courseURL))

	return subject, wrapTemplate(content, preheader)
}

// ─── REPORT EMAIL ────────────────────────────────────────────────────────────

// BuildReportEmail renders the paid full-report email with the score gauge
// and the per-category breakdown table.
func BuildReportEmail(d TemplateData) Message {
	var rows strings.Builder
	for _, cat := range d.CategoryScores {
		fmt.Fprintf(&rows, `
    <tr>
      <td style="padding: 8px 0; color: %s;">%s %s</td>
      <td style="padding: 8px 0; text-align: right; color: %s;">%d/%d (%d%%)</td>
    </tr>`, colorWhite, cat.Emoji, cat.Label, colorMuted, cat.Score, cat.MaxScore, cat.Percentage)
	}

	levelColor := scoring.LevelColor(d.Level)

	content := fmt.Sprintf(`
    <div style="background:%[1]s;border-radius:16px;padding:30px;margin-bottom:20px;">
      <div style="text-align:center;margin-bottom:24px;">
        <div style="font-size:48px;font-weight:800;color:%[2]s;">%[3]d/%[4]d</div>
        <div style="display:inline-block;padding:6px 20px;border-radius:20px;font-size:14px;font-weight:700;color:%[2]s;background:%[2]s20;margin-top:8px;">
          %[5]s
        </div>
      </div>
      <h3 style="color:%[6]s;margin-bottom:16px;">Desglose por Categoria</h3>
      <table style="width:100%%;border-collapse:collapse;">%[7]s
      </table>
    </div>`,
		colorSurface, levelColor, d.TotalScore, d.MaxScore,
		scoring.LevelLabel(d.Level), colorWhite, rows.String())

	return Message{
		To:      d.Email,
		Subject: "Tu Reporte Completo - Detectar al Narcisista",
		HTML:    wrapTemplate(content, "Tu reporte completo esta listo."),
	}
}
