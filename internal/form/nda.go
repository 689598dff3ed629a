package form

import (
	"fmt"
)

type NdaValue struct {
	CompanyID uint
	File      FileItem
}

// NdaPayload is the body of POST /api/document.
type NdaPayload struct {
	CompanyID uint   `json:"companyId"`
	FileURL   string `json:"fileUrl"`
}

type NdaForm struct {
	value NdaValue
}

func NewNdaForm(initial NdaValue) *NdaForm {
	return &NdaForm{value: initial}
}

func (f *NdaForm) Value() NdaValue {
	return f.value
}

func (f *NdaForm) Set(v NdaValue) {
	f.value = v
}

func (f *NdaForm) HandleChange(field string, value any) error {
	switch field {
	case "companyId":
		id, err := asUint(field, value)
		if err != nil {
			return err
		}
		f.value.CompanyID = id
		return nil
	case "file":
		switch v := value.(type) {
		case Blob:
			f.value.File = FileItem{Blob: &v}
		case FileRef:
			f.value.File = FileItem{Ref: &v}
		case nil:
			f.value.File = FileItem{}
		default:
			return fmt.Errorf("file: expected Blob or FileRef, got %T", value)
		}
		return nil
	}
	return fmt.Errorf("%s: %w", field, ErrUnknownField)
}

func (f *NdaForm) Validate() map[string]string {
	missing := map[string]string{}
	if f.value.CompanyID == 0 {
		missing["companyId"] = "required"
	}
	if f.value.File.Ref == nil && f.value.File.Blob == nil {
		missing["fileUrl"] = "required"
	}
	return missing
}

// Payload requires the NDA file to be uploaded.
func (f *NdaForm) Payload() (NdaPayload, error) {
	if f.value.File.Ref == nil {
		return NdaPayload{}, fmt.Errorf("nda file: %w", ErrPendingFiles)
	}
	return NdaPayload{CompanyID: f.value.CompanyID, FileURL: f.value.File.Ref.URL}, nil
}
