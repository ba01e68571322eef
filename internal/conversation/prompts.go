package conversation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/doska/internal/expiry"
	"github.com/matheus3301/doska/internal/listing"
)

// Button tokens. Dynamic tokens carry their value after the prefix.
const (
	TokenSkipText    = "skip_text"
	TokenSkipPhotos  = "skip_photos"
	TokenSkipComment = "skip_comment"

	TokenRoleDriver    = "role_driver"
	TokenRolePassenger = "role_passenger"

	TokenRoutePrefix = "route_"
	TokenRouteManual = "route_manual"
	TokenDatePrefix  = "date_"
	TokenTimePrefix  = "time_"
	TokenTimeManual  = "time_manual"
	TokenPricePrefix = "price_"
	TokenPriceTicket = "price_ticket"
	TokenPriceManual = "price_manual"
	TokenSeatsPrefix = "seats_"

	TokenContactHandle = "contact_handle"
	TokenContactPhone  = "contact_phone"
	TokenContactSkip   = "contact_skip"

	TokenPublish = "publish_yes"
	TokenEdit    = "publish_edit"
	TokenDiscard = "publish_cancel"
)

const (
	firstSlotHour  = 6
	maxDriverSeats = 5
	maxRiderSeats  = 4
)

const (
	promptCategory    = "Выберите тип объявления:"
	promptText        = "📝 Введите текст объявления:"
	promptPhotos      = "🖼️ Пришлите до 3 фото:"
	promptRole        = "Вы водитель или пассажир?"
	promptRoute       = "📍 Выберите маршрут:"
	promptOrigin      = "📍 Откуда выезжаете / откуда вам нужно уехать?"
	promptDestination = "📍 Куда едете / куда вам нужно попасть?"
	promptDate        = "📅 Выберите дату поездки:"
	promptTime        = "🕗 Выберите время:"
	promptManualTime  = "🕗 Укажите желаемое время:"
	promptPrice       = "💰 Выберите цену за поездку:"
	promptManualPrice = "💰 Введите цену (только цифры):"
	promptDriverSeats = "👤 Сколько свободных мест?"
	promptRiderSeats  = "👤 Сколько нужно мест?"
	promptComment     = "💬 Добавьте комментарий (ребёнок, груз, \"могу забрать с адреса\" и т.д.)"
	promptContact     = "Как с вами связаться?"
	promptPhone       = "📱 Введите номер телефона (10–11 цифр):"
	promptPreview     = "👀 Так будет выглядеть объявление:"

	msgPhotoAdded   = "📸 Фото добавлено (%d/%d).\nПродолжайте присылать или нажмите кнопку ниже:"
	msgNoHandle     = "❌ У вас не указан публичный @username (он скрыт или отсутствует)."
	msgRestart      = "✏️ Начнём заново."
	msgDiscarded    = "❌ Объявление отменено."
	msgCancelled    = "❌ Отменено."
	msgPublishError = "❌ Ошибка публикации. Попробуйте ещё раз: /start"
	msgIncomplete   = "❌ Не все поля заполнены."

	rejectButton      = "⚠️ Выберите вариант с помощью кнопок ниже."
	rejectStaleButton = "⚠️ Эта кнопка больше не действует."
	rejectNotPhoto    = "⚠️ Это не фото. Пришлите изображение."
	rejectNotText     = "⚠️ Пришлите ответ текстом."
	rejectBlank       = "⚠️ Ответ не может быть пустым."
	rejectBlankTime   = "🕗 Введите хотя бы что-нибудь."
	rejectLongBody    = "⚠️ Текст слишком длинный (%d из %d символов). Сократите его и пришлите снова."
	rejectPhone       = "❌ Неверный формат. Нужно 10 или 11 цифр."
	rejectPriceDigits = "❌ Введите только цифры (например: 500)."
	rejectPriceRange  = "❌ Укажите разумную цену (от 1 до 5000)."
	rejectPastSlot    = "⚠️ Это время уже прошло."
	rejectEmpty       = "❌ Объявление не может быть опубликовано:\n" +
		"Укажите текст объявления или пришлите фото.\n\n" +
		"Контакт сам по себе не является объявлением."
)

var categoryLabels = map[listing.Category]string{
	listing.Sell:     "🔴 Продать",
	listing.Buy:      "🟢 Куплю",
	listing.Exchange: "🔵 Обменяю",
	listing.Service:  "🟡 Услуги",
	listing.Misc:     "🟣 Разное",
}

// Intro is shown on /start above the first question.
func Intro(v listing.Variant, channel string) string {
	if v == listing.Rides {
		return fmt.Sprintf("Все поездки публикуются в канале: %s\n\n"+
			"Как создать поездку: нажмите МЕНЮ - Инструкция или /info", channel)
	}
	return fmt.Sprintf("Объявления публикуются в канале - %s\n\n"+
		"Как создать объявление? - /info", channel)
}

// Info is the /info instruction text. The rides text is HTML.
func Info(v listing.Variant, channel string) (string, bool) {
	if v == listing.Rides {
		return "<b>🚗 Как создать поездку</b>\n\n" +
			"1. Нажмите /start.\n" +
			"2. Укажите, вы <b>водитель</b> или <b>пассажир</b>.\n" +
			"3. Выберите готовый маршрут или <b>«Указать вручную»</b>.\n" +
			"4. Выберите дату поездки.\n" +
			"5. Выберите время:\n" +
			"   • готовый слот (например, <b>07:00 - 08:00</b>)\n" +
			"   • или <b>«✏️ Указать время вручную»</b> и напишите <b>любой текст</b>:\n" +
			"     → <code>15:30</code>\n" +
			"     → <code>вечером, после работы</code>\n" +
			"6. Водители укажут цену, пассажиры — сколько нужно мест.\n" +
			"7. Оставьте комментарий (по желанию) и укажите контакт.\n\n" +
			"<b>Готово!</b> Ваше объявление появится в канале " + channel + ".", true
	}
	return "📋 Как подать объявление:\n\n" +
		"1. Нажмите /start\n" +
		"2. Выберите тип объявления (Продать, Куплю и т.д.)\n" +
		"3. Введите текст объявления (можно пропустить)\n" +
		"4. Пришлите до 3 фото (можно пропустить)\n" +
		"5. Укажите способ связи — в личку или по телефону\n" +
		"6. Готово! Ваше объявление появится в канале " + channel, false
}

// Cancelled is the reply to /cancel.
func Cancelled() string { return msgCancelled }

func published(v listing.Variant, channel string) string {
	if v == listing.Rides {
		return fmt.Sprintf("✅ Объявление опубликовано в канале - %s.\n\n"+
			"Для создания новой поездки нажмите МЕНЮ - Создать поездку или /start", channel)
	}
	return fmt.Sprintf("✅ Ваше объявление опубликовано в канале - %s.\n\n"+
		"Чтобы создать новое объявление нажмите - /start", channel)
}

func categoryKeyboard() [][]Key {
	var rows [][]Key
	var row []Key
	for _, c := range listing.Categories(listing.Classifieds) {
		row = append(row, Key{Label: categoryLabels[c], Token: string(c)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func roleKeyboard() [][]Key {
	return [][]Key{
		{{Label: "🚗 Я водитель", Token: TokenRoleDriver}},
		{{Label: "👤 Я пассажир", Token: TokenRolePassenger}},
	}
}

func routeKeyboard(presets []listing.Route) [][]Key {
	var row []Key
	for i, r := range presets {
		row = append(row, Key{
			Label: r.Origin + " — " + r.Destination,
			Token: TokenRoutePrefix + strconv.Itoa(i),
		})
	}
	rows := [][]Key{}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, []Key{{Label: "✏️ Указать вручную", Token: TokenRouteManual}})
}

func dateKeyboard(today time.Time, days int) [][]Key {
	keys := make([]Key, 0, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, i)
		keys = append(keys, Key{Label: d.Format("02.01"), Token: TokenDatePrefix + d.Format(dateLayout)})
	}
	if len(keys) <= 4 {
		return [][]Key{keys}
	}
	return [][]Key{keys[:4], keys[4:]}
}

// timeKeyboard offers hourly slots from 06:00 to midnight, hiding the ones
// that already started when the ride is today.
func timeKeyboard(date, now time.Time) [][]Key {
	var slots []Key
	for h := firstSlotHour; h < 24; h++ {
		if slotStarted(date, h, now) {
			continue
		}
		end := (h + 1) % 24
		slots = append(slots, Key{
			Label: expiry.FormatSlot(h, end),
			Token: fmt.Sprintf("%s%02d:00_%02d:00", TokenTimePrefix, h, end),
		})
	}
	var rows [][]Key
	for i := 0; i < len(slots); i += 2 {
		rows = append(rows, slots[i:min(i+2, len(slots))])
	}
	return append(rows, []Key{{Label: "✏️ Указать время вручную", Token: TokenTimeManual}})
}

func priceKeyboard(prices []int) [][]Key {
	rows := [][]Key{{{Label: "По цене билета", Token: TokenPriceTicket}}}
	var row []Key
	for _, p := range prices {
		row = append(row, Key{Label: fmt.Sprintf("%d ₽", p), Token: TokenPricePrefix + strconv.Itoa(p)})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, []Key{{Label: "✏️ Указать вручную", Token: TokenPriceManual}})
}

func seatsKeyboard(limit int) [][]Key {
	row := make([]Key, 0, limit)
	for n := 1; n <= limit; n++ {
		row = append(row, Key{Label: strconv.Itoa(n), Token: TokenSeatsPrefix + strconv.Itoa(n)})
	}
	return [][]Key{row}
}

func contactKeyboard(v listing.Variant) [][]Key {
	if v == listing.Rides {
		return [][]Key{
			{{Label: "📱 Указать номер", Token: TokenContactPhone}},
			{{Label: "💬 Принимать в ЛС", Token: TokenContactHandle}},
			{{Label: "⏭️ Пропустить", Token: TokenContactSkip}},
		}
	}
	return [][]Key{
		{{Label: "📩 В личку", Token: TokenContactHandle}, {Label: "📞 По телефону", Token: TokenContactPhone}},
		{{Label: "⏭️ Пропустить", Token: TokenContactSkip}},
	}
}

func previewKeyboard() [][]Key {
	return [][]Key{
		{{Label: "✅ Опубликовать", Token: TokenPublish}},
		{{Label: "✏️ Изменить", Token: TokenEdit}, {Label: "❌ Отменить", Token: TokenDiscard}},
	}
}

func skipKeyboard(label, token string) [][]Key {
	return [][]Key{{{Label: label, Token: token}}}
}
