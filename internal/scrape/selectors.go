package scrape

// SVG path data identifying icon-only buttons.
const (
	regeneratePath = "M224,128a96,96,0,0,1-94.71,96H128A95.38,95.38,0,0,1,62.1,197.8a8,8,0,0,1,11-11.63A80,80,0,1,0,71.43,71.39a3.07,3.07,0,0,1-.26.25L44.59,96H72a8,8,0,0,1,0,16H24a8,8,0,0,1-8-8V56a8,8,0,0,1,16,0V85.8L60.25,60A96,96,0,0,1,224,128Z"
	closePath      = "M205.66,194.34a8,8,0,0,1-11.32,11.32L128,139.31,61.66,205.66a8,8,0,0,1-11.32-11.32L116.69,128,50.34,61.66A8,8,0,0,1,61.66,50.34L128,116.69l66.34-66.35a8,8,0,0,1,11.32,11.32L139.31,128Z"
	backPath       = "M224,128a8,8,0,0,1-8,8H59.31l58.35,58.34a8,8,0,0,1-11.32,11.32l-72-72a8,8,0,0,1,0-11.32l72-72a8,8,0,0,1,11.32,11.32L59.31,120H216A8,8,0,0,1,224,128Z"
)

// Selectors locates the parts of the chat page the counter reads or
// clicks. The application's markup changes without notice, so every
// entry can be overridden from the config file.
type Selectors struct {
	ModelSelector string `toml:"model_selector,omitempty"`
	ModelLabel    string `toml:"model_label,omitempty"`

	MainInput        string `toml:"main_input,omitempty"`
	EditTextarea     string `toml:"edit_textarea,omitempty"`
	SendButton       string `toml:"send_button,omitempty"`
	SaveButton       string `toml:"save_button,omitempty"`
	RegenerateButton string `toml:"regenerate_button,omitempty"`

	UserMessage      string `toml:"user_message,omitempty"`
	AssistantMessage string `toml:"assistant_message,omitempty"`

	SidebarButton   string   `toml:"sidebar_button,omitempty"`
	SidebarContent  string   `toml:"sidebar_content,omitempty"`
	SidebarSections []string `toml:"sidebar_sections,omitempty"`

	ProjectFilesContainer string `toml:"project_files_container,omitempty"`
	ProjectFile           string `toml:"project_file,omitempty"`
	ProjectFileName       string `toml:"project_file_name,omitempty"`
	ContentFile           string `toml:"content_file,omitempty"`
	ContentFileName       string `toml:"content_file_name,omitempty"`

	Modal             string `toml:"modal,omitempty"`
	ModalContent      string `toml:"modal_content,omitempty"`
	ModalClose        string `toml:"modal_close,omitempty"`
	FileViewContainer string `toml:"file_view_container,omitempty"`
	FileContent       string `toml:"file_content,omitempty"`
	BackButton        string `toml:"back_button,omitempty"`
}

// DefaultSelectors returns selectors for the current claude.ai markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ModelSelector: `[data-testid="model-selector-dropdown"]`,
		ModelLabel:    `.whitespace-nowrap`,

		MainInput:        `div[aria-label="Write your prompt to Claude"]`,
		EditTextarea:     `.font-user-message textarea`,
		SendButton:       `button[aria-label="Send Message"]`,
		SaveButton:       `button[type="submit"]`,
		RegenerateButton: `button:has(path[d="` + regeneratePath + `"])`,

		UserMessage:      `[data-testid="user-message"]`,
		AssistantMessage: `.font-claude-message`,

		SidebarButton:  `[data-testid="chat-controls"]`,
		SidebarContent: `.bg-bg-100.border-0\.5.border-border-300.flex-1`,
		SidebarSections: []string{
			`.border-border-400.rounded-lg.border`,
			`.mt-2.flex.flex-col.gap-2`,
		},

		ProjectFilesContainer: `.border-border-400.rounded-lg.border`,
		ProjectFile:           `button[data-testid="file-thumbnail"]`,
		ProjectFileName:       `div[data-testid]`,
		ContentFile:           `.border-border-300.bg-bg-000.flex.flex-1`,
		ContentFileName:       `.break-words.text-sm`,

		Modal:             `[role="dialog"]`,
		ModalContent:      `.whitespace-pre-wrap.break-all.text-xs`,
		ModalClose:        `button:has(svg path[d="` + closePath + `"])`,
		FileViewContainer: `.flex.h-full.flex-col.pb-1.pl-5.pt-3`,
		FileContent:       `.whitespace-pre-wrap.break-all.text-xs`,
		BackButton:        `button:has(svg path[d="` + backPath + `"])`,
	}
}

// Merge returns s with every empty field taken from base.
func (s Selectors) Merge(base Selectors) Selectors {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&s.ModelSelector, base.ModelSelector)
	fill(&s.ModelLabel, base.ModelLabel)
	fill(&s.MainInput, base.MainInput)
	fill(&s.EditTextarea, base.EditTextarea)
	fill(&s.SendButton, base.SendButton)
	fill(&s.SaveButton, base.SaveButton)
	fill(&s.RegenerateButton, base.RegenerateButton)
	fill(&s.UserMessage, base.UserMessage)
	fill(&s.AssistantMessage, base.AssistantMessage)
	fill(&s.SidebarButton, base.SidebarButton)
	fill(&s.SidebarContent, base.SidebarContent)
	if len(s.SidebarSections) == 0 {
		s.SidebarSections = base.SidebarSections
	}
	fill(&s.ProjectFilesContainer, base.ProjectFilesContainer)
	fill(&s.ProjectFile, base.ProjectFile)
	fill(&s.ProjectFileName, base.ProjectFileName)
	fill(&s.ContentFile, base.ContentFile)
	fill(&s.ContentFileName, base.ContentFileName)
	fill(&s.Modal, base.Modal)
	fill(&s.ModalContent, base.ModalContent)
	fill(&s.ModalClose, base.ModalClose)
	fill(&s.FileViewContainer, base.FileViewContainer)
	fill(&s.FileContent, base.FileContent)
	fill(&s.BackButton, base.BackButton)
	return s
}

// MessageUnion matches both user and assistant turns in one scan.
func (s Selectors) MessageUnion() string {
	return s.UserMessage + ", " + s.AssistantMessage
}

// Prompts lists the inputs where a plain Enter submits.
func (s Selectors) Prompts() []string {
	return []string{s.MainInput, s.EditTextarea}
}
