package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"cinegenius-server/internal/models"
)

// Системные инструкции задач. {{LANGUAGE}} заменяется языком ответа.
const (
	parseScriptInstruction = `You are a professional script reader and first assistant director. Analyze the provided film script. Extract the title, a logline, a detailed breakdown of every scene, and a list of all characters. Provide the entire response in {{LANGUAGE}}. Ensure the JSON output strictly adheres to the provided schema.`

	parseScriptFilePrompt = `Analyze the attached script file and extract the required information in {{LANGUAGE}}.`

	scheduleInstruction = `You are a 1st Assistant Director creating a shooting schedule. Based on the provided scene breakdown, create an efficient shooting schedule. Group scenes by location to minimize company moves. Aim for a reasonable number of pages per day (e.g., 3-5 pages). Provide the entire response in {{LANGUAGE}}.`

	shotListInstruction = `You are a visionary film director and cinematographer. For the given scene, create a dynamic and visually interesting shot list. Suggest varied camera shots and appropriate lenses to tell the story effectively. Provide the entire response in {{LANGUAGE}}.`

	productionGuideInstruction = `You are a team of seasoned film industry professionals: a cinematographer, a production designer, a gaffer, and a costume designer. For the provided scene details, create a comprehensive production guide covering camera/lenses, art department props, lighting design, and costume concepts. Your suggestions should be creative, practical, and thematically consistent with the scene's summary and characters. Provide the entire response in {{LANGUAGE}}.`

	continuityInstruction = `You are an expert script supervisor and film editor. Analyze the entire script breakdown provided. Your task is to identify continuity errors and potential editing problems.
Focus on three areas:
1.  **Character Continuity**: Do characters appear or disappear between scenes illogically? Note any inconsistencies.
2.  **Costume Continuity**: Based on scene summaries and character actions, flag potential costume inconsistencies between consecutive scenes where a character appears. Assume a costume change only happens if the script implies it (e.g., time passes, character changes at home).
3.  **Editing Continuity**: From an editor's perspective, identify potential issues between scenes. This includes jarring transitions, potential for jump cuts, 'crossing the line' (180-degree rule) problems based on scene descriptions, and mismatches in time or setting. Suggest solutions for these editing challenges.
Provide the entire response in {{LANGUAGE}}.`

	assistantInstruction = `You are an intelligent filmmaking assistant called CineGenius. The user has provided a script which has been analyzed into the following JSON data. Your task is to answer the user's questions based on this data. Be helpful, concise, and provide creative insights where appropriate. If a question cannot be answered from the data, state that clearly and politely. Answer in markdown format when it makes sense (e.g., for lists). Respond in {{LANGUAGE}}.

Here is the script analysis data:
{{ANALYSIS}}`
)

func withLanguage(template string, lang models.Language) string {
	return strings.ReplaceAll(template, "{{LANGUAGE}}", string(lang.OrDefault()))
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func schedulePrompt(scenes []models.Scene) (string, error) {
	data, err := toJSON(scenes)
	if err != nil {
		return "", err
	}
	return "Create a schedule from this analysis:\n" + data, nil
}

func shotListPrompt(scene models.Scene) string {
	return fmt.Sprintf("Generate a shot list for this scene:\nSetting: %s, %s\nCharacters: %s\nSummary: %s",
		scene.Setting, scene.TimeOfDay, strings.Join(scene.Characters, ", "), scene.Summary)
}

func imagePrompt(shot models.Shot, scene models.Scene) string {
	clean := SanitizeShotDescription(shot.Description, scene.Characters)
	return fmt.Sprintf("cinematic film still of %s. Setting: %s, %s. Camera: %s, %s. Photorealistic with dramatic lighting.",
		clean, scene.Setting, scene.TimeOfDay, shot.ShotType, shot.Lens)
}

func productionGuidePrompt(scene models.Scene) string {
	return fmt.Sprintf("Generate a production guide for the following scene:\n- Scene Number: %d\n- Setting: %s, %s\n- Characters: %s\n- Summary: %s",
		scene.SceneNumber, scene.Setting, scene.TimeOfDay, strings.Join(scene.Characters, ", "), scene.Summary)
}

func continuityPrompt(analysis models.ScriptAnalysis) (string, error) {
	data, err := toJSON(struct {
		Scenes     []models.Scene     `json:"scenes"`
		Characters []models.Character `json:"characters"`
	}{analysis.Scenes, analysis.Characters})
	if err != nil {
		return "", err
	}
	return "Analyze this script for continuity issues:\n" + data, nil
}

func assistantSystemInstruction(analysis models.ScriptAnalysis, lang models.Language) (string, error) {
	data, err := toJSON(analysis)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(withLanguage(assistantInstruction, lang), "{{ANALYSIS}}", data), nil
}
