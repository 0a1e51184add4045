package artifact

import (
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"

	"licensedesk/internal/domain"
)

// Artifact - печатный документ одной лицензии: QR с ключом плюс
// фиксированный текстовый шаблон.
type Artifact struct {
	Key  string
	Text string
	PNG  []byte
}

// WritePNG пишет растр в переданный приемник. Куда печатать/сохранять -
// всегда параметр вызова, рендерер не держит никаких "текущих принтеров".
func (a *Artifact) WritePNG(dst io.Writer) error {
	if _, err := dst.Write(a.PNG); err != nil {
		return &domain.RenderError{Key: a.Key, Err: err}
	}
	return nil
}

// Renderer - чистое отображение записи в артефакт. Состояния нет,
// только неизменяемый шаблон; один и тот же ключ всегда дает
// байт-в-байт одинаковый результат.
type Renderer struct {
	title  string
	issuer string
	size   int // размер QR в пикселях
}

func NewRenderer(title, issuer string, size int) *Renderer {
	return &Renderer{title: title, issuer: issuer, size: size}
}

// Render кодирует ключ записи в QR и собирает текст шаблона.
// От состояния хранилища не зависит: упавший рендер не трогает
// уже сохраненную запись и повторяется в любой момент.
func (r *Renderer) Render(rec *domain.LicenseRecord) (*Artifact, error) {
	png, err := qrcode.Encode(rec.Key, qrcode.Medium, r.size)
	if err != nil {
		return nil, &domain.RenderError{Key: rec.Key, Err: err}
	}
	return &Artifact{
		Key:  rec.Key,
		Text: fmt.Sprintf("%s\n\nLicense key: %s\nIssued by: %s\n", r.title, rec.Key, r.issuer),
		PNG:  png,
	}, nil
}

// Preview рисует QR псевдографикой в dst (для терминала оператора)
func (r *Renderer) Preview(key string, dst io.Writer) {
	qrterminal.GenerateWithConfig(key, qrterminal.Config{
		Level:     qrterminal.M,
		Writer:    dst,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
}
