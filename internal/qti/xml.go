package qti

import "encoding/xml"

// QTI 1.2 ASI document model. Only the elements Canvas-style importers read
// are modelled.

const (
	asiNamespace = "http://www.imsglobal.org/xsd/ims_qtiasiv1p2"
	responseID   = "response1"
	scoreVar     = "SCORE"

	fbCorrect   = "correct_fb"
	fbIncorrect = "incorrect_fb"
	fbGeneral   = "general_fb"
)

type questestinterop struct {
	XMLName    xml.Name   `xml:"questestinterop"`
	Xmlns      string     `xml:"xmlns,attr"`
	Assessment assessment `xml:"assessment"`
}

type assessment struct {
	Ident   string  `xml:"ident,attr"`
	Title   string  `xml:"title,attr"`
	Section section `xml:"section"`
}

type section struct {
	Ident string  `xml:"ident,attr"`
	Items []*Item `xml:"item"`
}

// Item is one assessment item with its response-processing tree.
type Item struct {
	XMLName       xml.Name       `xml:"item"`
	Ident         string         `xml:"ident,attr"`
	Title         string         `xml:"title,attr"`
	Metadata      []MetaField    `xml:"itemmetadata>qtimetadata>qtimetadatafield"`
	Presentation  Presentation   `xml:"presentation"`
	Resprocessing Resprocessing  `xml:"resprocessing"`
	Feedback      []ItemFeedback `xml:"itemfeedback"`
}

// MetaField is a Canvas qtimetadata entry.
type MetaField struct {
	Label string `xml:"fieldlabel"`
	Entry string `xml:"fieldentry"`
}

// Material wraps one mattext block.
type Material struct {
	Text MatText `xml:"mattext"`
}

// MatText is text content; HTML when TextType is text/html.
type MatText struct {
	TextType string `xml:"texttype,attr"`
	Text     string `xml:",chardata"`
}

func htmlMaterial(s string) Material {
	return Material{Text: MatText{TextType: "text/html", Text: s}}
}

// Presentation is the stem plus exactly one response capture.
type Presentation struct {
	Material    Material     `xml:"material"`
	ResponseLid *ResponseLid `xml:"response_lid,omitempty"`
	ResponseStr *ResponseStr `xml:"response_str,omitempty"`
}

// ResponseLid is a choice-based response.
type ResponseLid struct {
	Ident        string       `xml:"ident,attr"`
	Rcardinality string       `xml:"rcardinality,attr"`
	RenderChoice RenderChoice `xml:"render_choice"`
}

// RenderChoice lists the lettered options.
type RenderChoice struct {
	Shuffle string          `xml:"shuffle,attr"`
	Labels  []ResponseLabel `xml:"response_label"`
}

// ResponseLabel is one option.
type ResponseLabel struct {
	Ident    string   `xml:"ident,attr"`
	Material Material `xml:"material"`
}

// ResponseStr is a free-text response.
type ResponseStr struct {
	Ident        string    `xml:"ident,attr"`
	Rcardinality string    `xml:"rcardinality,attr"`
	RenderFib    RenderFib `xml:"render_fib"`
}

// RenderFib is a fill-in-the-blank field.
type RenderFib struct {
	FibType string   `xml:"fibtype,attr"`
	Label   FibLabel `xml:"response_label"`
}

// FibLabel names the blank.
type FibLabel struct {
	Ident    string `xml:"ident,attr"`
	RShuffle string `xml:"rshuffle,attr"`
}

// Resprocessing declares the score variable and the ordered conditions.
type Resprocessing struct {
	Outcomes   Outcomes        `xml:"outcomes"`
	Conditions []RespCondition `xml:"respcondition"`
}

// Outcomes holds the item's single score variable.
type Outcomes struct {
	Decvar Decvar `xml:"decvar"`
}

// Decvar bounds the score variable.
type Decvar struct {
	VarName  string `xml:"varname,attr"`
	VarType  string `xml:"vartype,attr"`
	MinValue string `xml:"minvalue,attr"`
	MaxValue string `xml:"maxvalue,attr"`
}

// RespCondition is one branch: a predicate, a score assignment and the
// feedback shown when it fires.
type RespCondition struct {
	Continue string            `xml:"continue,attr"`
	Title    string            `xml:"title,attr,omitempty"`
	Var      ConditionVar      `xml:"conditionvar"`
	SetVar   SetVar            `xml:"setvar"`
	Display  []DisplayFeedback `xml:"displayfeedback"`
}

// ConditionVar holds predicates that must all hold.
type ConditionVar struct {
	Conditions []Condition `xml:",any"`
}

// Condition is a predicate node: and, or, not, varequal, vargte, varlte or
// other. Leaves carry the compared value as character data.
type Condition struct {
	XMLName   xml.Name
	RespIdent string      `xml:"respident,attr,omitempty"`
	Case      string      `xml:"case,attr,omitempty"`
	Value     string      `xml:",chardata"`
	Children  []Condition `xml:",any"`
}

// SetVar assigns the score.
type SetVar struct {
	VarName string `xml:"varname,attr"`
	Action  string `xml:"action,attr"`
	Value   string `xml:",chardata"`
}

// DisplayFeedback links a branch to an itemfeedback block.
type DisplayFeedback struct {
	FeedbackType string `xml:"feedbacktype,attr"`
	LinkRefID    string `xml:"linkrefid,attr"`
}

// ItemFeedback is a feedback block referenced from branches.
type ItemFeedback struct {
	Ident    string   `xml:"ident,attr"`
	View     string   `xml:"view,attr"`
	Material Material `xml:"material"`
}

func node(name string, children ...Condition) Condition {
	return Condition{XMLName: xml.Name{Local: name}, Children: children}
}

func leaf(name, value string) Condition {
	return Condition{XMLName: xml.Name{Local: name}, RespIdent: responseID, Value: value}
}

func varEqual(value string) Condition { return leaf("varequal", value) }
func varGTE(value string) Condition   { return leaf("vargte", value) }
func varLTE(value string) Condition   { return leaf("varlte", value) }
func and(c ...Condition) Condition    { return node("and", c...) }
func not(c Condition) Condition       { return node("not", c) }
func other() Condition                { return node("other") }

// manifest is the IMS content package descriptor.
type manifest struct {
	XMLName        xml.Name   `xml:"manifest"`
	Identifier     string     `xml:"identifier,attr"`
	Version        string     `xml:"version,attr"`
	Xmlns          string     `xml:"xmlns,attr"`
	XmlnsImsmd     string     `xml:"xmlns:imsmd,attr"`
	XmlnsXsi       string     `xml:"xmlns:xsi,attr"`
	SchemaLocation string     `xml:"xsi:schemaLocation,attr"`
	Organizations  struct{}   `xml:"organizations"`
	Resources      []resource `xml:"resources>resource"`
}

type resource struct {
	Identifier string `xml:"identifier,attr"`
	Type       string `xml:"type,attr"`
	Href       string `xml:"href,attr"`
	File       struct {
		Href string `xml:"href,attr"`
	} `xml:"file"`
}
