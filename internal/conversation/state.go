package conversation

// State is the question a session is waiting to have answered.
type State int

const (
	Idle State = iota

	AwaitingCategory
	AwaitingText
	AwaitingPhotos

	AwaitingRole
	AwaitingRoute
	AwaitingOrigin
	AwaitingDestination
	AwaitingDate
	AwaitingTime
	AwaitingManualTime
	AwaitingPrice
	AwaitingManualPrice
	AwaitingSeats
	AwaitingComment

	AwaitingContactMethod
	AwaitingPhone
	AwaitingPreview

	Terminal
)

var stateNames = map[State]string{
	Idle:                  "idle",
	AwaitingCategory:      "awaiting_category",
	AwaitingText:          "awaiting_text",
	AwaitingPhotos:        "awaiting_photos",
	AwaitingRole:          "awaiting_role",
	AwaitingRoute:         "awaiting_route",
	AwaitingOrigin:        "awaiting_origin",
	AwaitingDestination:   "awaiting_destination",
	AwaitingDate:          "awaiting_date",
	AwaitingTime:          "awaiting_time",
	AwaitingManualTime:    "awaiting_manual_time",
	AwaitingPrice:         "awaiting_price",
	AwaitingManualPrice:   "awaiting_manual_price",
	AwaitingSeats:         "awaiting_seats",
	AwaitingComment:       "awaiting_comment",
	AwaitingContactMethod: "awaiting_contact_method",
	AwaitingPhone:         "awaiting_phone",
	AwaitingPreview:       "awaiting_preview",
	Terminal:              "terminal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
