package dto

type ExceptionInput struct {
	TaskID     int64
	Reason     string // short, wrong_product, empty, ...
	CountedQty *int
	UserID     string
}
