package pipeline

import (
	"fmt"

	"graphic-novel-web/internal/domain"
)

// vibeTones は Vibe ごとのアウトライン指示です。%d にはページ数が入ります。
var vibeTones = map[domain.Vibe]string{
	domain.VibeAdventure: "Create an exciting %d-chapter adventure story where a brave hero battles a dangerous villain to save their world.",
	domain.VibeFunny:     "Create a hilarious %d-chapter comedy where pranks, mishaps, and silly situations lead to unexpected fun.",
	domain.VibeFairytale: "Create a magical %d-chapter fairy tale full of wonder, enchantment, and happily-ever-after moments.",
	domain.VibeSchool:    "Create a heartwarming %d-chapter school story about friendship, learning, and growing up together.",
}

// structureHints はページ数ごとの構成指示です。
var structureHints = map[int]string{
	4:  "Structure: Introduction, Development, Twist, Conclusion.",
	8:  "Structure: an 8-act hero journey (ordinary world, call, mentor, threshold, trials, ordeal, reward, return).",
	12: "Structure: a 12-act epic adventure with rising stakes, a midpoint reversal and a grand finale.",
}

func vibeTone(vibe domain.Vibe, pages int) string {
	tone, ok := vibeTones[vibe]
	if !ok {
		tone = vibeTones[domain.VibeAdventure]
	}
	return fmt.Sprintf(tone, pages)
}

// fallbackOutlines はプロバイダーが使えない場合の固定アウトラインです。
// Vibe とページ数の組み合わせごとに別の文面を持ちます。
var fallbackOutlines = map[domain.Vibe]map[int][]string{
	domain.VibeAdventure: {
		4: {
			"The hero discovers a mysterious challenge in their world.",
			"The hero sets out on a journey and meets the villain for the first time.",
			"The villain sets a clever trap, and the hero must find a way out.",
			"The hero wins with courage and kindness, and the world is safe again.",
		},
		8: {
			"The hero lives a quiet life until a strange sign appears in the sky.",
			"A message arrives asking the hero to stop the villain's plan.",
			"A wise old friend gives the hero a special gift for the road.",
			"The hero leaves home and crosses into an unknown land.",
			"Tricky puzzles and wild creatures test the hero along the way.",
			"Deep in the villain's lair, the hero faces their biggest fear.",
			"The hero outsmarts the villain and frees everyone who was trapped.",
			"The hero returns home, wiser and braver, and everyone celebrates.",
		},
		12: {
			"In a peaceful land, the hero dreams of a great adventure.",
			"A rumble shakes the land, and a shadow creeps over the hills.",
			"The villain appears and steals the treasure that keeps the land bright.",
			"The hero promises to bring the treasure back and packs for the trip.",
			"On the road, the hero meets a helpful companion who knows the way.",
			"Together they cross a roaring river on a wobbly bridge.",
			"A storm separates the friends, and the hero must go on alone.",
			"The hero finds a hidden map that shows the villain's secret fortress.",
			"The friends reunite just in time to sneak past the fortress guards.",
			"The villain catches them, and the hero must think fast.",
			"With teamwork and courage, the hero wins back the treasure.",
			"The land shines again, and the hero is welcomed home as a champion.",
		},
	},
	domain.VibeFunny: {
		4: {
			"The trickster wakes up with a brilliant and very silly idea.",
			"The prank goes wrong in the funniest way, and the victim gets covered in goo.",
			"Everything gets sillier as the whole town joins the chaos.",
			"Everyone ends up laughing together, and the trickster says sorry with a grin.",
		},
		8: {
			"It is an ordinary morning, and the trickster is very bored.",
			"The trickster spots the victim carrying a giant birthday cake.",
			"A plan is hatched with rubber chickens and a squeaky trumpet.",
			"The first prank works, but a dog runs off with the trumpet.",
			"Chasing the dog, the trickster and the victim crash into a bubble machine.",
			"The whole street fills with bubbles, and nobody can see a thing.",
			"The cake lands on the mayor's head, and the crowd gasps.",
			"The mayor bursts out laughing, and everyone shares the squashed cake.",
		},
		12: {
			"The trickster opens a brand new joke shop in the middle of town.",
			"The first customer is the victim, who never laughs at anything.",
			"The trickster makes a bet: one day to make the victim giggle.",
			"A whoopee cushion on the victim's chair gets only a frown.",
			"Juggling pancakes ends with syrup dripping from the ceiling.",
			"A dancing costume splits right down the middle at the worst moment.",
			"The victim's pet parrot starts copying every silly noise.",
			"The parrot escapes, and the chase leads into the town fountain.",
			"Soaking wet, the trickster slips on a banana peel for real.",
			"The victim snorts, then tries very hard not to laugh.",
			"A tiny hiccup turns into the biggest laugh the town has ever heard.",
			"The two become best friends and run the joke shop together.",
		},
	},
	domain.VibeFairytale: {
		4: {
			"Once upon a time, the protagonist finds a glowing door in the forest.",
			"Through the door, a magical friend asks for help to break a sleepy spell.",
			"The spell grows stronger, and the protagonist must solve a riddle of the stars.",
			"The riddle is solved, the spell is broken, and they live happily ever after.",
		},
		8: {
			"The protagonist lives in a small cottage at the edge of an enchanted wood.",
			"One night a shooting star lands in the garden, and out steps a magical friend.",
			"The magical friend has lost their wand and cannot fly home.",
			"The two set off to find the wand in the Whispering Wood.",
			"Talking trees give them a puzzle before they will open the path.",
			"A grumpy troll guards the bridge where the wand is hidden.",
			"The protagonist shares a kind gift, and the troll lets them pass.",
			"The magical friend flies home, promising to return every starry night.",
		},
		12: {
			"In a kingdom of flowers, the protagonist tends the royal garden.",
			"The flowers begin to fade, and nobody knows why.",
			"A magical friend appears in a drop of dew and asks for help.",
			"They learn that the sun crystal has been taken from the tallest tower.",
			"The protagonist climbs the tower stairs, one hundred steps high.",
			"At the top, a sad dragon is holding the crystal to stay warm.",
			"The protagonist knits the dragon a cozy scarf from rainbow wool.",
			"The happy dragon gives back the crystal and offers them a ride.",
			"They fly over mountains and seas as the kingdom comes back into view.",
			"The crystal is placed back, and light pours over every garden.",
			"The flowers bloom brighter than ever, and the people cheer.",
			"The dragon, the magical friend and the protagonist live happily ever after.",
		},
	},
	domain.VibeSchool: {
		4: {
			"It is the first day at a new school, and the student feels nervous.",
			"The student meets a friend who is also looking for their classroom.",
			"A class project goes wrong, and the two must work together to fix it.",
			"The project is a success, and the student cannot wait for tomorrow.",
		},
		8: {
			"The student arrives at school and sees a poster for the science fair.",
			"The student and a friend decide to build a rocket together.",
			"Their first test launch fizzles, and the class giggles.",
			"The teacher shows them how to learn from mistakes.",
			"They spend lunch breaks drawing plans and testing small models.",
			"The night before the fair, their rocket falls apart.",
			"Classmates pitch in, and together they rebuild it by morning.",
			"The rocket soars, and the whole class shares the blue ribbon.",
		},
		12: {
			"A new school year begins, and the student joins the art club.",
			"The student meets a quiet friend who draws amazing animals.",
			"The club learns it will paint a big mural for the school hallway.",
			"Everyone has different ideas, and the first meeting gets noisy.",
			"The student suggests that each member draws their favorite thing.",
			"The quiet friend is too shy to share their drawing.",
			"The student helps the friend feel brave enough to show it.",
			"A rainstorm leaks into the hallway and smudges the first sketches.",
			"The club stays after school to start again, even better this time.",
			"Parents and teachers peek in, curious about the surprise.",
			"The mural is revealed, full of animals, rockets and rainbows.",
			"The student and their friend smile at their names painted side by side.",
		},
	},
}

// FallbackOutline は (vibe, pages) の固定アウトラインのコピーを返します。
// 未知の vibe は adventure、未知のページ数は 4 ページ版を繰り返して埋めます。
func FallbackOutline(vibe domain.Vibe, pages int) []string {
	byPages, ok := fallbackOutlines[vibe]
	if !ok {
		byPages = fallbackOutlines[domain.VibeAdventure]
	}
	if outline, ok := byPages[pages]; ok {
		return append([]string(nil), outline...)
	}
	base := byPages[4]
	out := make([]string, pages)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}
