package carrier

// LabelPayload is the pre-posting request body. Field names and string
// encodings follow the carrier API exactly.
type LabelPayload struct {
	Sender    Party `json:"remetente"`
	Recipient Party `json:"destinatario"`

	ServiceCode string `json:"codigoServico"`
	WeightGrams string `json:"pesoInformado"`
	FormatCode  string `json:"codigoFormatoObjetoInformado"`
	Height      string `json:"alturaInformada"`
	Width       string `json:"larguraInformada"`
	Length      string `json:"comprimentoInformado"`

	NotProhibited      string              `json:"cienteObjetoNaoProibido"`
	ContentItems       []ContentItem       `json:"itensDeclaracaoConteudo"`
	AdditionalServices []AdditionalService `json:"listaServicoAdicional,omitempty"`
	Observation        string              `json:"observacao,omitempty"`
}

type Party struct {
	Name       string  `json:"nome"`
	AreaCode   string  `json:"dddTelefone,omitempty"`
	Phone      string  `json:"telefone,omitempty"`
	MobileArea string  `json:"dddCelular,omitempty"`
	Mobile     string  `json:"celular,omitempty"`
	Email      string  `json:"email,omitempty"`
	Document   string  `json:"cpfCnpj"`
	Address    Address `json:"endereco"`
}

type Address struct {
	PostalCode   string `json:"cep"`
	Street       string `json:"logradouro"`
	Number       string `json:"numero"`
	Complement   string `json:"complemento,omitempty"`
	Neighborhood string `json:"bairro"`
	City         string `json:"cidade"`
	State        string `json:"uf"`
}

type ContentItem struct {
	Content  string `json:"conteudo"`
	Quantity string `json:"quantidade"`
	Value    string `json:"valor"`
}

type AdditionalService struct {
	Code          string `json:"codigoServicoAdicional"`
	DeclaredValue string `json:"valorDeclarado"`
}

// Additional service code for declared value insurance.
const ServiceDeclaredValue = "019"
